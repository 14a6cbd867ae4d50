// Package labjack contains drivers for LabJack data acquisition devices.
package labjack

import (
	"fmt"

	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/ljm"
	"github.com/lumasullo/lantz/pkg/stream"
)

// Address is a Modbus register address with its data type
type Address struct {
	Address int `json:"address"`
	Type    int `json:"type"`
}

// T7 drives a LabJack T7. Analog inputs are AIN0..AIN13, analog outputs
// DAC0..DAC1 (0 to 5 V) and digital lines DIO0..DIO22.
type T7 struct {
	*lantz.Driver

	lib    ljm.Library
	handle ljm.Handle
	stream *stream.Engine
}

// NewT7 opens the device matching identifier (ljm.Any for the first one found)
func NewT7(name string, lib ljm.Library, identifier string) (*T7, error) {
	if identifier == "" {
		identifier = ljm.Any
	}
	h, err := lib.OpenS("T7", ljm.Any, identifier)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", name, err)
	}
	t := &T7{Driver: lantz.NewDriver(name), lib: lib, handle: h}
	t.stream = stream.New(name, backend{t})
	t.define()
	t.OnFinalize(t.close)
	t.Log.Infof("opened T7 %s, handle %d", identifier, h)
	return t, nil
}

// Stream returns the acquisition engine of the device
func (t *T7) Stream() *stream.Engine {
	return t.stream
}

func (t *T7) close() error {
	if t.stream.Running() {
		if err := t.stream.Stop(); err != nil {
			t.Log.Warnf("stopping stream on finalize: %v", err)
		}
	}
	return t.lib.Close(t.handle)
}

func (t *T7) readName(name string) (any, error) {
	return t.lib.ReadName(t.handle, name)
}

func (t *T7) writeName(name string, value any) error {
	f, err := lantz.Float(value)
	if err != nil {
		return err
	}
	return t.lib.WriteName(t.handle, name, f)
}

func (t *T7) writeNames(prefix string, keys, values []any) error {
	names := make([]string, len(keys))
	floats := make([]float64, len(values))
	for i := range keys {
		names[i] = fmt.Sprintf("%s%v", prefix, keys[i])
		f, err := lantz.Float(values[i])
		if err != nil {
			return err
		}
		floats[i] = f
	}
	return t.lib.WriteNames(t.handle, names, floats)
}

func (t *T7) define() {
	t.MustAddFeat(&lantz.Feat{
		Name:     "idn",
		Doc:      "Identification with the device serial number",
		ReadOnce: true,
		Get: func() (any, error) {
			sn, err := t.lib.ReadName(t.handle, "SERIAL_NUMBER")
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Labjack T7, serial number %d", int(sn)), nil
		},
	})

	t.MustAddDictFeat(&lantz.DictFeat{
		Name:  "analog_in",
		Doc:   "Voltage of the analog input AIN#",
		Keys:  lantz.Range(0, 14),
		Units: "V",
		Get:   func(k any) (any, error) { return t.readName(fmt.Sprintf("AIN%v", k)) },
	})

	t.MustAddDictFeat(&lantz.DictFeat{
		Name:   "analog_out",
		Doc:    "Voltage of the analog output DAC#",
		Keys:   lantz.Range(0, 2),
		Units:  "V",
		Limits: lantz.Between(0, 5),
		Get:    func(k any) (any, error) { return t.readName(fmt.Sprintf("DAC%v", k)) },
		Set:    func(k, v any) error { return t.writeName(fmt.Sprintf("DAC%v", k), v) },
		SetMany: func(keys, values []any) error {
			return t.writeNames("DAC", keys, values)
		},
	})

	t.MustAddDictFeat(&lantz.DictFeat{
		Name:    "digital_io",
		Doc:     "State of the digital line DIO#, also configuring its direction",
		Keys:    lantz.Range(0, 23),
		Values:  lantz.MustValues(map[any]any{true: 1, false: 0}),
		Get:     func(k any) (any, error) { return t.readName(fmt.Sprintf("DIO%v", k)) },
		Set:     func(k, v any) error { return t.writeName(fmt.Sprintf("DIO%v", k), v) },
		SetMany: func(keys, values []any) error { return t.writeNames("DIO", keys, values) },
	})

	t.MustAddAction(&lantz.Action{
		Name: "write_name",
		Doc:  "Write one register by name: write_name(name, value)",
		Func: func(args ...any) (any, error) {
			name, err := lantz.ArgString(args, 0)
			if err != nil {
				return nil, err
			}
			v, err := lantz.ArgFloat(args, 1)
			if err != nil {
				return nil, err
			}
			return nil, t.lib.WriteName(t.handle, name, v)
		},
	})

	t.MustAddAction(&lantz.Action{
		Name: "write_names",
		Doc:  "Write several registers in one call: write_names(names, values)",
		Func: func(args ...any) (any, error) {
			names, err := lantz.ArgStrings(args, 0)
			if err != nil {
				return nil, err
			}
			values, err := lantz.ArgFloats(args, 1)
			if err != nil {
				return nil, err
			}
			if len(names) != len(values) {
				return nil, fmt.Errorf("%w: %d names but %d values", lantz.ErrInvalidArgument, len(names), len(values))
			}
			return nil, t.lib.WriteNames(t.handle, names, values)
		},
	})

	t.MustAddAction(&lantz.Action{
		Name: "address",
		Doc:  "Modbus address and type of a register name",
		Func: func(args ...any) (any, error) {
			name, err := lantz.ArgString(args, 0)
			if err != nil {
				return nil, err
			}
			a, typ, err := t.lib.NameToAddress(name)
			if err != nil {
				return nil, err
			}
			return Address{Address: a, Type: typ}, nil
		},
	})

	t.MustAddAction(&lantz.Action{
		Name: "addresses",
		Doc:  "Modbus addresses and types of several register names",
		Func: func(args ...any) (any, error) {
			names, err := lantz.ArgStrings(args, 0)
			if err != nil {
				return nil, err
			}
			addrs, types, err := t.lib.NamesToAddresses(names)
			if err != nil {
				return nil, err
			}
			out := make([]Address, len(addrs))
			for i := range addrs {
				out[i] = Address{Address: addrs[i], Type: types[i]}
			}
			return out, nil
		},
	})

	t.MustAddAction(&lantz.Action{
		Name: "stream_start",
		Doc:  "Start streaming: stream_start(scans_per_read, scan_list, scan_rate); returns the actual scan rate",
		Func: func(args ...any) (any, error) {
			spr, err := lantz.ArgInt(args, 0)
			if err != nil {
				return nil, err
			}
			list, err := lantz.ArgInts(args, 1)
			if err != nil {
				return nil, err
			}
			rate, err := lantz.ArgFloat(args, 2)
			if err != nil {
				return nil, err
			}
			return t.stream.Start(spr, list, rate)
		},
	})

	t.MustAddAction(&lantz.Action{
		Name: "stream_read",
		Doc:  "Wait for and return the next batch of scans",
		Func: func(args ...any) (any, error) {
			return t.stream.Read()
		},
	})

	t.MustAddAction(&lantz.Action{
		Name: "stream_stop",
		Doc:  "Stop streaming; data already buffered by LJM stays readable by the library",
		Func: func(args ...any) (any, error) {
			return nil, t.stream.Stop()
		},
	})
}

// backend adapts the LJM stream calls to the stream engine
type backend struct {
	t *T7
}

func (b backend) Start(scansPerRead int, scanList []int, scanRate float64) (float64, error) {
	return b.t.lib.StreamStart(b.t.handle, scansPerRead, scanList, scanRate)
}

func (b backend) Read() ([]float64, int, int, error) {
	return b.t.lib.StreamRead(b.t.handle)
}

func (b backend) Stop() error {
	return b.t.lib.StreamStop(b.t.handle)
}

// RetainsBufferOnStop is true: LJM keeps collected data after the device stops
func (backend) RetainsBufferOnStop() bool {
	return true
}
