// Package find locates the oscilloscope's USB serial device by walking
// /sys/class/tty and reading the USB descriptor strings of each usb-backed
// tty.
package find

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// TTY describes a usb-backed serial device.
type TTY struct {
	Dev          string // device name under /dev, e.g. ttyACM0
	SysPath      string // resolved sysfs path
	VendorID     string
	ProductID    string
	Manufacturer string
	Product      string
	Serial       string
}

func (t TTY) String() string {
	return fmt.Sprintf("dev %s vid/pid %s/%s mfg %q product %q serial %s",
		t.Dev, t.VendorID, t.ProductID, t.Manufacturer, t.Product, t.Serial)
}

// Filter narrows the candidate devices; the first device for which it
// returns true is chosen.
type Filter func(*TTY) bool

// Batronix matches the oscilloscope vendor's descriptor string.
func Batronix(t *TTY) bool {
	return strings.Contains(t.Manufacturer, "Batronix")
}

// BySerial matches a specific device serial number.
func BySerial(serial string) Filter {
	return func(t *TTY) bool { return t.Serial == serial }
}

// First returns the /dev name of the first usb tty matching the filter. A
// nil filter accepts any usb tty, but then exactly one must be present.
func First(filter Filter) (string, error) {
	ttys, err := All()
	if err != nil {
		return "", err
	}
	if filter != nil {
		for i := range ttys {
			if filter(&ttys[i]) {
				return ttys[i].Dev, nil
			}
		}
		return "", fmt.Errorf("no matching usb tty found")
	}
	switch len(ttys) {
	case 0:
		return "", fmt.Errorf("no usb ttys found")
	case 1:
		return ttys[0].Dev, nil
	}
	return "", fmt.Errorf("multiple usb ttys: %v", ttys)
}

// All lists the usb-backed ttys on the system by following the symlinks
// under /sys/class/tty.
func All() ([]TTY, error) {
	const classTTY = "/sys/class/tty/"
	entries, err := os.ReadDir(classTTY)
	if err != nil {
		return nil, err
	}
	var ttys []TTY
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		abs, err := filepath.EvalSymlinks(filepath.Join(classTTY, e.Name()))
		if err != nil {
			log.Printf("skipping %s: %s", e.Name(), err)
			continue
		}
		if !strings.Contains(abs, "usb") {
			continue
		}
		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			log.Printf("%s: no device dir: %s", abs, err)
			continue
		}
		// The descriptor files live one level above the interface dir.
		t := readDescriptors(filepath.Dir(dev))
		t.Dev = e.Name()
		t.SysPath = abs
		ttys = append(ttys, t)
	}
	return ttys, nil
}

// readDescriptors reads the USB descriptor attribute files for a device.
// Missing files are left empty; the kernel does not populate all of them for
// every device.
func readDescriptors(dir string) TTY {
	attr := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
	return TTY{
		VendorID:     attr("idVendor"),
		ProductID:    attr("idProduct"),
		Manufacturer: attr("manufacturer"),
		Product:      attr("product"),
		Serial:       attr("serial"),
	}
}
