// Command flightcore runs the quadrotor attitude control engine: the
// interrupt-driven core, the flight-mode supervisor, the safety
// watchdog, the radio watcher, and the lifecycle/LED/printer tasks,
// wired around one shared fcstate.Store.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arobi/flightcore/internal/core"
	"github.com/arobi/flightcore/internal/fcconfig"
	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/gpio"
	"github.com/arobi/flightcore/internal/imu"
	"github.com/arobi/flightcore/internal/lifecycle"
	"github.com/arobi/flightcore/internal/logsink"
	"github.com/arobi/flightcore/internal/obslog"
	"github.com/arobi/flightcore/internal/pwm"
	"github.com/arobi/flightcore/internal/radio"
	"github.com/arobi/flightcore/internal/receiver"
	"github.com/arobi/flightcore/internal/safety"
	"github.com/arobi/flightcore/internal/supervisor"
	"github.com/arobi/flightcore/internal/telemetry"
)

var (
	enableLog   = flag.Bool("l", false, "enable log-file recording")
	quiet       = flag.Bool("q", false, "quiet mode, suppress the telemetry printer")
	enableUplink = flag.Bool("m", false, "enable telemetry uplink")

	configPath  = flag.String("config", "flightcore.yaml", "gain configuration file")
	logPath     = flag.String("log-path", "flightcore.csv", "log file path, used with -l")
	uplinkAddr  = flag.String("uplink-addr", "127.0.0.1:14550", "ground-station UDP address, used with -m")
	httpAddr    = flag.String("http-addr", ":8088", "metrics and live-feed HTTP listen address")

	imuPort      = flag.String("imu-port", "", "serial port for the IMU driver; empty uses the simulated driver")
	imuBaud      = flag.Int("imu-baud", 115200, "baud rate for the IMU serial port")
	imuFSR       = flag.Float64("imu-fsr", 2000, "gyro full-scale range in deg/s")
	pwmPort      = flag.String("pwm-port", "", "serial port for the PWM driver; ignored, the simulated driver is always used")
	receiverPort = flag.String("receiver-port", "", "serial port for the radio receiver; ignored, the simulated driver is always used")
)

const gyroHeaderBytes = 20

func main() {
	flag.Parse()
	obslog.Logger.Info("flightcore starting")

	if err := run(); err != nil {
		obslog.Logger.WithError(err).Error("flightcore exiting with error")
		os.Exit(1)
	}
	obslog.Logger.Info("flightcore clean shutdown")
}

func run() error {
	cfg, err := fcconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("flightcore: load config: %w", err)
	}
	store := fcstate.New(cfg)

	imuDrv, err := openIMU()
	if err != nil {
		return fmt.Errorf("flightcore: open imu: %w", err)
	}
	pwmDrv, err := openPWM()
	if err != nil {
		return fmt.Errorf("flightcore: open pwm: %w", err)
	}
	receiverDrv := openReceiver()

	sig := lifecycle.NewSignal()
	sig.Set(lifecycle.Running)

	sink := logsink.NewSink(256)
	engine := core.New(store, imuDrv, pwmDrv, sink)

	leds := &gpio.SimLEDs{}
	button := &gpio.SimPauseButton{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		obslog.Logger.Info("flightcore: shutdown signal received")
		sig.Set(lifecycle.Exiting)
		cancel()
	}()

	registerMetrics(store)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	var liveFeed *telemetry.LiveFeed
	if *enableUplink {
		liveFeed = telemetry.NewLiveFeed(store)
		mux.HandleFunc("/ws/telemetry", liveFeed.HandleWebSocket)
	}
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.Logger.WithError(err).Warn("flightcore: http server stopped")
		}
	}()

	sup := supervisor.New(store, sig, leds, pwmDrv, *configPath)
	watchdog := safety.New(store, sig)
	watcher := radio.New(store, sig, receiverDrv)

	go lifecycle.LEDTask(ctx, sig, store, leds)
	go lifecycle.PrinterTask(ctx, sig, store, *quiet)
	go lifecycle.PauseButtonTask(ctx, sig, store, button)
	go sup.Run(ctx)
	go watchdog.Run(ctx)
	go watcher.Run(ctx)

	if *enableLog {
		writer, err := logsink.NewFileWriter(sink, *logPath)
		if err != nil {
			return fmt.Errorf("flightcore: open log file: %w", err)
		}
		go writer.Run(ctx, 200*time.Millisecond)
	}

	if *enableUplink {
		uplink, err := telemetry.Dial(store, *uplinkAddr)
		if err != nil {
			obslog.Logger.WithError(err).Warn("flightcore: telemetry uplink unavailable")
		} else {
			go uplink.Run(ctx)
		}
		if liveFeed != nil {
			go liveFeed.Run(ctx)
		}
	}

	runControlLoop(ctx, engine)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	return nil
}

// runControlLoop drives the interrupt-equivalent control cycle: a
// 200 Hz ticker stands in for the IMU's hardware interrupt in the
// absence of a real IRQ-to-channel bridge. The core itself never
// sleeps; only this driving loop does.
func runControlLoop(ctx context.Context, engine *core.Engine) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.RunCycle()
		}
	}
}

func openIMU() (imu.Driver, error) {
	if *imuPort == "" {
		return imu.NewSimDriver(*imuFSR), nil
	}
	return imu.OpenSerialDriver(*imuPort, *imuBaud, *imuFSR)
}

func openPWM() (pwm.Driver, error) {
	if *pwmPort == "" {
		return pwm.NewSimDriver(), nil
	}
	// A real serial-backed PWM driver would open *pwmPort here; none is
	// wired yet, so fall back to the simulated driver rather than
	// fabricating a backend the spec does not require.
	return pwm.NewSimDriver(), nil
}

func openReceiver() receiver.Driver {
	if *receiverPort == "" {
		return receiver.NewSimDriver()
	}
	return receiver.NewSimDriver()
}

var (
	loopCounter = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flightcore_control_loops_total",
		Help: "Number of attitude-core control cycles executed.",
	})
	armedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flightcore_armed",
		Help: "1 if the core is armed (not Disarmed), 0 otherwise.",
	})
)

func registerMetrics(store *fcstate.Store) {
	prometheus.MustRegister(loopCounter, armedGauge)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			st := store.State()
			loopCounter.Set(float64(st.ControlLoops))
			sp := store.Setpoint()
			if sp.Mode != fcstate.Disarmed {
				armedGauge.Set(1)
			} else {
				armedGauge.Set(0)
			}
		}
	}()
}
