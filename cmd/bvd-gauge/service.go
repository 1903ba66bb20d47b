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
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/ridgeline-sensing/bvd-gauge/divider"
)

const (
	dbusName = "org.ridgeline.BVDGauge"
	dbusPath = "/org/ridgeline/BVDGauge"
)

type service struct {
	sensor *divider.Sensor
}

func startService(s *divider.Sensor) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	svc := &service{
		sensor: s,
	}
	conn.Export(svc, dbusPath, dbusName)
	conn.Export(genIntrospectable(svc), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Voltage returns the last battery voltage as whole volts and microvolts.
func (s service) Voltage() (int, int, *dbus.Error) {
	volts, microvolts := s.sensor.Voltage()
	return volts, microvolts, nil
}

// Millivolts returns the last battery voltage in millivolts.
func (s service) Millivolts() (int, *dbus.Error) {
	return s.sensor.Millivolts(), nil
}

// StateOfCharge returns the last charge estimate in whole percent.
func (s service) StateOfCharge() (int, *dbus.Error) {
	return s.sensor.StateOfCharge(), nil
}

// Raw returns the last raw ADC count.
func (s service) Raw() (int, *dbus.Error) {
	return s.sensor.Raw(), nil
}

// sendBatterySignal announces a reading on the system bus.
func sendBatterySignal(millivolts, percent int) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}

	sig := &dbus.Signal{
		Path: dbusPath,
		Name: dbusName + ".Battery",
		Body: []interface{}{millivolts, percent},
	}

	return conn.Emit(sig.Path, sig.Name, sig.Body...)
}
