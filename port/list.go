package port

import (
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Info describes a serial port found on this host.
type Info struct {
	Name         string `json:"name"`
	Product      string `json:"product,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	USB          bool   `json:"usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
}

// List enumerates serial ports, with USB details where the platform
// provides them.
func List() ([]Info, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil || len(details) == 0 {
		return listNames()
	}
	res := make([]Info, 0, len(details))
	for _, d := range details {
		res = append(res, Info{
			Name:         d.Name,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
		})
	}
	sortInfo(res)
	return res, nil
}

func listNames() ([]Info, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	res := make([]Info, 0, len(names))
	for _, n := range names {
		res = append(res, Info{Name: n})
	}
	sortInfo(res)
	return res, nil
}

func sortInfo(list []Info) {
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
}
