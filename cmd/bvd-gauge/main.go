/*
bvd-gauge - Battery voltage divider state of charge gauge
Copyright (C) 2025, Ridgeline Sensing

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ridgeline-sensing/bvd-gauge/adc"
	"github.com/ridgeline-sensing/bvd-gauge/api"
	"github.com/ridgeline-sensing/bvd-gauge/divider"
)

const (
	batteryReadingsFile = "/var/log/bvd-gauge-readings.csv"
	batteryMaxLines     = 2000

	lowBatteryPercent  = 10
	signalPercentDelta = 5
)

var version = "<not set>"

var log = logrus.New()

type argSpec struct {
	ConfigFile string `arg:"-c,--config" default:"/etc/bvd-gauge.yaml" help:"configuration file"`
	Socket     string `arg:"--socket" help:"unix socket path for the HTTP API"`
	OneShot    bool   `arg:"--one-shot" help:"take a single reading, print it and exit"`
	LogLevel   string `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (argSpec) Version() string {
	return version
}

func procArgs() argSpec {
	args := argSpec{
		Socket: api.DefaultSocketPath,
	}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)

	log.Info("Running version: ", version)

	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return err
	}

	reader, err := openReader(conf)
	if err != nil {
		return err
	}

	var gate gpio.PinIO
	if conf.PowerGatePin != "" {
		gate = gpioreg.ByName(conf.PowerGatePin)
		if gate == nil {
			return fmt.Errorf("failed to find power gate GPIO %q", conf.PowerGatePin)
		}
	}

	sensor, err := divider.New(reader, divider.Config{
		OutputOhms:    conf.OutputOhms,
		FullOhms:      conf.FullOhms,
		Curve:         conf.Curve,
		PowerGate:     gate,
		GateActiveLow: conf.GateActiveLow,
	})
	if err != nil {
		return err
	}

	if args.OneShot {
		if err := sensor.Fetch(); err != nil {
			return err
		}
		volts, microvolts := sensor.Voltage()
		fmt.Printf("voltage: %d.%06dV\ncharge: %d%%\n", volts, microvolts, sensor.StateOfCharge())
		return nil
	}

	if err := startService(sensor); err != nil {
		return err
	}

	apiServer := api.NewServer(sensor, log)
	go func() {
		if err := apiServer.Serve(args.Socket); err != nil {
			log.Error("HTTP server failed: ", err)
		}
	}()

	if err := keepLastLines(batteryReadingsFile, batteryMaxLines); err != nil {
		log.Warnf("Could not truncate battery readings file: %v", err)
	}
	trimFileTime := time.Now()

	sampleRate := time.Duration(conf.SampleRateSeconds) * time.Second
	log.Debug("Setting sample rate to ", sampleRate)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(sampleRate)
	defer ticker.Stop()

	lastSignalledPercent := -1

	for {
		select {
		case sig := <-sigc:
			log.Infof("Caught signal %q, shutting down.", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := apiServer.Shutdown(ctx); err != nil {
				log.Errorf("Failed to shut down http server: %v", err)
			}
			cancel()
			return nil

		case <-ticker.C:
			if err := sensor.Fetch(); err != nil {
				// Recoverable, the previous reading stays current.
				log.Error("Battery reading failed: ", err)
				continue
			}

			millivolts := sensor.Millivolts()
			percent := sensor.StateOfCharge()
			log.Debugf("ADC raw %d, battery %dmV, charge %d%%", sensor.Raw(), millivolts, percent)

			if err := logReadingToFile(sensor.Raw(), millivolts, percent); err != nil {
				log.Error("Error logging battery reading: ", err)
			}

			if time.Since(trimFileTime) > 24*time.Hour {
				if err := keepLastLines(batteryReadingsFile, batteryMaxLines); err != nil {
					log.Warnf("Could not truncate battery readings file: %v", err)
				} else {
					trimFileTime = time.Now()
				}
			}

			if lastSignalledPercent < 0 || abs(percent-lastSignalledPercent) >= signalPercentDelta {
				if err := sendBatterySignal(millivolts, percent); err != nil {
					log.Error("Error sending battery signal: ", err)
				} else {
					lastSignalledPercent = percent
				}
			}

			if percent <= lowBatteryPercent {
				log.Warnf("Low battery warning: %d%% (%dmV)", percent, millivolts)
			}
		}
	}
}

func openReader(conf *Config) (divider.AnalogReader, error) {
	switch conf.ADCType {
	case adcTypeMCP3008:
		port, err := spireg.Open(conf.SPIDev)
		if err != nil {
			return nil, fmt.Errorf("failed to open SPI port %q: %w", conf.SPIDev, err)
		}
		return adc.NewMCP3008(port, conf.ADCChannel, conf.RefMillivolts)
	case adcTypeADS1115:
		bus, err := i2creg.Open(conf.I2CDev)
		if err != nil {
			return nil, fmt.Errorf("failed to open I2C bus %q: %w", conf.I2CDev, err)
		}
		return adc.NewADS1115(bus, conf.I2CAddr, conf.ADCChannel)
	}
	return nil, fmt.Errorf("unknown adc type %q", conf.ADCType)
}

func logReadingToFile(raw, millivolts, percent int) error {
	file, err := os.OpenFile(batteryReadingsFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(formatReadingLine(time.Now(), raw, millivolts, percent) + "\n")
	return err
}

// Format: timestamp, raw count, millivolts, percent
func formatReadingLine(t time.Time, raw, millivolts, percent int) string {
	return fmt.Sprintf("%s, %d, %d, %d", t.Format("2006-01-02 15:04:05"), raw, millivolts, percent)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
