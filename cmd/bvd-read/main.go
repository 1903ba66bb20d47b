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

// bvd-read queries the bvd-gauge daemon over D-Bus and prints the last
// battery reading.
package main

import (
	"encoding/json"
	"fmt"

	arg "github.com/alexflint/go-arg"
	"github.com/godbus/dbus"
	"github.com/sirupsen/logrus"
)

const (
	dbusName = "org.ridgeline.BVDGauge"
	dbusPath = "/org/ridgeline/BVDGauge"
)

var version = "<not set>"

var log = logrus.New()

type argSpec struct {
	JSON bool `arg:"--json" help:"output the reading as JSON"`
}

func (argSpec) Version() string {
	return version
}

type reading struct {
	Millivolts int `json:"millivolts"`
	Raw        int `json:"raw"`
	Percent    int `json:"percent"`
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
}

func runMain() error {
	var args argSpec
	arg.MustParse(&args)

	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object(dbusName, dbusPath)

	var r reading
	if err := obj.Call(dbusName+".Millivolts", 0).Store(&r.Millivolts); err != nil {
		return fmt.Errorf("is the bvd-gauge service running? %w", err)
	}
	if err := obj.Call(dbusName+".Raw", 0).Store(&r.Raw); err != nil {
		return err
	}
	if err := obj.Call(dbusName+".StateOfCharge", 0).Store(&r.Percent); err != nil {
		return err
	}

	if args.JSON {
		out, err := json.Marshal(r)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("voltage: %d.%03dV\ncharge: %d%%\n", r.Millivolts/1000, r.Millivolts%1000, r.Percent)
	return nil
}
