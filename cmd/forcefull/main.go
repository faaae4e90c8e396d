// forcefull is an emergency tool: it connects straight to the inverter and
// pins the output limit, bypassing the control loop entirely. Use it when the
// daemon is down and the limiter is stuck at a low percentage.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"sunfence/pkg/goodwe"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

func main() {
	host := flag.String("host", os.Getenv("SUNFENCE_INVERTER_MODBUS_TCP_HOST"), "inverter host")
	port := flag.Uint("port", 502, "inverter modbus tcp port")
	unitID := flag.Uint("unit-id", 247, "modbus unit id")
	mode := flag.String("mode", "export_pct", "limiter mode: active_pct or export_pct")
	pct := flag.Float64("pct", 100, "limit percentage to write")
	disable := flag.Bool("disable", false, "turn the limiter switch off instead of writing a percentage")
	timeout := flag.Duration("timeout", 2*time.Second, "modbus timeout")
	flag.Parse()

	if *host == "" {
		fmt.Fprintln(os.Stderr, "forcefull: -host (or SUNFENCE_INVERTER_MODBUS_TCP_HOST) is required")
		os.Exit(2)
	}
	if *pct < 0 || *pct > 100 {
		fmt.Fprintln(os.Stderr, "forcefull: -pct must be in [0, 100]")
		os.Exit(2)
	}

	logger := zap.Must(zap.NewProduction())
	defer logger.Sync()

	client, err := goodwe.NewClient(*host, *port, uint8(*unitID), *timeout, nil)
	if err != nil {
		logger.Fatal("client init failed", zap.Error(err))
	}

	limitMode, err := goodwe.ParseLimitMode(*mode)
	if err != nil {
		logger.Fatal("bad limiter mode", zap.Error(err))
	}

	limiter := goodwe.NewLimiter(client, limitMode, time.Second, time.Second, logger)
	defer limiter.Close()

	if err := limiter.WriteLimit(*pct, !*disable); err != nil {
		logger.Fatal("write failed", zap.Error(err))
	}

	st, err := limiter.State()
	if err != nil {
		logger.Warn("write ok, readback failed", zap.Error(err))
		return
	}
	logger.Info("limiter updated",
		zap.Bool("enabled", st.Enabled),
		zap.Float64("export_pct", st.ExportPct),
		zap.Float64("active_pct", st.ActivePct))
}
