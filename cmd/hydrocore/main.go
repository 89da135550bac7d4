// Command hydrocore runs the environmental control core: it loads a
// config file, opens the measurement/action store, wires the GPIO chip
// (real or, under --dry-run, an in-memory stub) into the output
// arbiter, opens every configured sensor and controller, and drives
// them from the cooperative scheduler (component J) until interrupted.
//
// No teacher cmd/ entry point grounds this file directly: the pack's
// cmd/pico-hal-main is a TinyGo/embedded build with no os/signal, no
// config file, and no logging library (see DESIGN.md). Its
// wire-then-run-loop shape carries over; the cobra/viper/zerolog
// scaffolding around it is SPEC_FULL.md's own AMBIENT STACK choice.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hydrocore/config"
	"hydrocore/entity"
	"hydrocore/eventbus"
	"hydrocore/internal/arbiter"
	"hydrocore/internal/controller"
	"hydrocore/internal/controller/dosing"
	"hydrocore/internal/controller/pumptimer"
	"hydrocore/internal/gpio"
	"hydrocore/internal/scheduler"
	"hydrocore/internal/sensor"
	"hydrocore/internal/sensor/drivers"
	"hydrocore/internal/store"
)

func main() {
	var (
		configPath string
		httpAddr   string
		dryRun     bool
	)

	root := &cobra.Command{
		Use:   "hydrocore",
		Short: "Environmental control core for hydroponic/pool systems",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Load the config, wire the hardware, and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, httpAddr, dryRun)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "/etc/hydrocore/hydrocore.yaml", "path to the YAML config file")
	runCmd.Flags().StringVar(&httpAddr, "http-addr", "", "address for the status API to listen on (out of scope here; passed through opaquely)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "use an in-memory stub chip instead of real GPIO hardware")

	root.AddCommand(runCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, httpAddr string, dryRun bool) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "hydrocore").Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("refusing to start: config rejected")
		return err
	}

	if httpAddr != "" {
		log.Info().Str("addr", httpAddr).Msg("status API address configured (serving it is out of scope here)")
	}

	st, err := store.Open(cfg.StoreDSN, cfg.Retention.MeasurementMaxAge, cfg.Retention.MeasurementMaxPoints)
	if err != nil {
		log.Error().Err(err).Msg("failed to open store")
		return err
	}
	defer st.Close()
	if err := st.Hydrate(); err != nil {
		log.Error().Err(err).Msg("failed to hydrate store")
		return err
	}

	chip, err := openChip(dryRun)
	if err != nil {
		log.Error().Err(err).Msg("failed to open GPIO chip")
		return err
	}
	defer chip.Close()

	bus := eventbus.NewBus(256)
	coreConn := bus.NewConnection("core")

	arb := arbiter.New(chip, coreConn, log.With().Str("component", "arbiter").Logger())
	if cfg.Pins.PanicButton != 0 {
		if err := arb.Register(cfg.Pins.PanicButton, arbiter.DefaultInterlock); err != nil {
			log.Warn().Err(err).Int("pin", cfg.Pins.PanicButton).Msg("failed to register panic button pin")
		}
	}

	watchdogStop := make(chan struct{})
	go arb.RunInterlockWatchdog(watchdogStop, time.Second)
	defer close(watchdogStop)

	sensorRegistry := newSensorRegistry(chip, log)
	controllerRegistry := newControllerRegistry()

	sched := scheduler.New(arb, log.With().Str("component", "scheduler").Logger())

	sensorInstances := make(map[string]*sensor.Instance, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		if !sc.Enabled {
			continue
		}
		driver, ok := sensorRegistry.Lookup(sc.DriverTag)
		if !ok {
			log.Error().Str("sensor", sc.ID).Str("driver_tag", sc.DriverTag).Msg("unknown driver tag, skipping sensor")
			continue
		}
		sen := entity.Sensor{
			ID:                sc.ID,
			Name:              sc.Name,
			DriverTag:         sc.DriverTag,
			Enabled:           sc.Enabled,
			UpdateInterval:    sc.UpdateInterval,
			Config:            sc.Config,
			CreatedAt:         time.Now(),
			WaterTempSensorID: sc.WaterTempSensorID,
		}
		for _, dc := range cfg.DefaultCalibrations {
			if dc.DriverTag == sc.DriverTag {
				for _, p := range dc.Points {
					sen.CalibrationData = append(sen.CalibrationData, entity.CalibrationPoint{Raw: p.Raw, Real: p.Real})
				}
				break
			}
		}
		inst, err := sensor.Open(sen, driver, st, coreConn, log)
		if err != nil {
			log.Error().Err(err).Str("sensor", sc.ID).Msg("failed to open sensor, skipping")
			continue
		}
		if sen.WaterTempSensorID != "" {
			waterTempID := sen.WaterTempSensorID
			inst.WaterTempFn = func() (float64, bool) {
				m, ok := st.Latest(waterTempID)
				if !ok {
					return 0, false
				}
				return m.Value, true
			}
		}
		sensorInstances[sc.ID] = inst
		sched.RegisterSensor(sc.ID, sc.UpdateInterval, inst.Tick)
	}

	for _, cc := range cfg.Controllers {
		if !cc.Enabled {
			continue
		}
		variant, ok := controllerRegistry.Lookup(cc.ControllerType)
		if !ok {
			log.Error().Str("controller", cc.ID).Str("controller_type", cc.ControllerType).Msg("unknown controller type, skipping")
			continue
		}
		desc := variant.Describe(cc.Config)
		for _, pin := range desc.ActuatorPins {
			if err := arb.Register(pin, arbiter.DefaultInterlock); err != nil {
				log.Error().Err(err).Int("pin", pin).Str("controller", cc.ID).Msg("failed to register actuator pin")
			}
		}
		c := entity.Controller{
			ID:             cc.ID,
			Name:           cc.Name,
			ControllerType: cc.ControllerType,
			Enabled:        cc.Enabled,
			UpdateInterval: cc.UpdateInterval,
			Config:         cc.Config,
			BoundSensors:   cc.BoundSensors,
			CreatedAt:      time.Now(),
		}
		inst, err := controller.Open(c, variant, arb, st, st.Latest, coreConn, log)
		if err != nil {
			log.Error().Err(err).Str("controller", cc.ID).Msg("failed to open controller, skipping")
			continue
		}
		sched.RegisterController(cc.ID, cc.UpdateInterval, inst.Tick)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Int("sensors", len(sensorInstances)).Msg("hydrocore running")
	sched.Run(ctx)

	for _, inst := range sensorInstances {
		if err := inst.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing sensor")
		}
	}
	log.Info().Msg("hydrocore stopped")
	return nil
}

func openChip(dryRun bool) (gpio.Chip, error) {
	if dryRun {
		return gpio.NewStubChip(), nil
	}
	return gpio.NewLinuxChip("gpiochip0")
}

func newSensorRegistry(chip gpio.Chip, log zerolog.Logger) *sensor.Registry {
	r := sensor.NewRegistry()
	r.Register(drivers.DS18B20Tag, &drivers.DS18B20{Chip: chip})
	r.Register(drivers.SHT41Tag, &drivers.SHT41{Chip: chip})
	r.Register(drivers.CS1237PHTag, &drivers.CS1237PH{Chip: chip, Log: log})
	r.Register(drivers.CS1237ORPTag, &drivers.CS1237ORP{Chip: chip, Log: log})
	r.Register(drivers.CS1237ECTag, &drivers.CS1237EC{Chip: chip, Log: log})
	r.Register(drivers.CS1237GenericTag, &drivers.CS1237Generic{Chip: chip, Log: log})
	return r
}

func newControllerRegistry() *controller.Registry {
	r := controller.NewRegistry()
	r.Register(dosing.PHTag, dosing.NewPH())
	r.Register(dosing.ORPTag, dosing.NewORP())
	r.Register(dosing.ECTag, dosing.NewEC())
	r.Register(pumptimer.Tag, pumptimer.Variant{})
	return r
}
