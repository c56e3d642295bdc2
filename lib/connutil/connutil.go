// Package connutil wires command-line flags to a scope connection. It picks
// between a raw TCP SCPI socket, the instrument's REST endpoint, and a
// discovered USB serial port, and verifies the identification string before
// handing the scope to the caller.
package connutil

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gotmc/magnova"
	"github.com/gotmc/magnova/lib/find"
	"github.com/gotmc/magnova/lib/rest"
	"go.bug.st/serial"
	"go.uber.org/multierr"
)

// Conn holds the connection flags for the example tools.
type Conn struct {
	Addr       string // host or host:port of the raw SCPI socket
	RESTHost   string // host of the REST endpoint
	SerialPort string // serial device, discovered when empty
	Baud       int
	Settle     time.Duration
	Debug      bool

	tty     string
	finderr error
}

// AddFlags is to be called before [flag.Parse].
func (c *Conn) AddFlags() {
	c.tty, c.finderr = find.First(find.Batronix)
	if c.finderr != nil {
		c.tty = "ttyACM0"
	}
	if c.Baud == 0 {
		c.Baud = 115200
	}
	if c.Settle == 0 {
		c.Settle = 100 * time.Millisecond
	}

	flag.StringVar(&c.Addr, "addr", "", "host[:port] of the scope's raw SCPI socket")
	flag.StringVar(&c.RESTHost, "rest", "", "host of the scope's REST endpoint")
	flag.StringVar(&c.SerialPort, "port", "/dev/"+c.tty, "serial port for the USB connection")
	flag.IntVar(&c.Baud, "baud", c.Baud, "serial baud rate")
	flag.DurationVar(&c.Settle, "settle", c.Settle, "delay after scale/offset changes")
	flag.BoolVar(&c.Debug, "debug", c.Debug, "log SCPI traffic")
}

// Setup is to be called after [flag.Parse]. It opens the selected transport,
// builds the scope, and checks the identification response. The cleanup
// function closes the transport.
func (c *Conn) Setup(opts []magnova.ScopeOption) (*magnova.Scope, func(), error) {
	nocleanup := func() {}
	log.SetFlags(log.Lmicroseconds)

	tr, err := c.dial()
	if err != nil {
		return nil, nocleanup, err
	}

	opts = append(opts, magnova.WithSettleDelay(c.Settle))
	if c.Debug {
		opts = append(opts, magnova.WithDebug())
	}
	scope, err := magnova.NewScope(tr, opts...)
	if err != nil {
		err = multierr.Append(err, tr.Close())
		return nil, nocleanup, err
	}

	idn, err := scope.Identify()
	if err != nil {
		err = multierr.Append(fmt.Errorf("identification failed: %w", err), tr.Close())
		return nil, nocleanup, err
	}
	if !strings.Contains(idn, magnova.Vendor) {
		err = fmt.Errorf("connected device is not a %s scope: %q", magnova.Vendor, idn)
		err = multierr.Append(err, tr.Close())
		return nil, nocleanup, err
	}
	log.Printf("connected to %s", idn)

	cleanup := func() {
		if err := scope.Close(); err != nil {
			log.Printf("error closing connection: %s", err)
		}
	}
	return scope, cleanup, nil
}

func (c *Conn) dial() (magnova.Transport, error) {
	if c.Addr != "" {
		log.Printf("scpi socket = %s", c.Addr)
		return magnova.DialTCP(c.Addr)
	}
	if c.RESTHost != "" {
		log.Printf("rest endpoint = %s:%d", c.RESTHost, rest.DefaultPort)
		return rest.NewClient(c.RESTHost, rest.DefaultPort), nil
	}
	if c.finderr != nil && c.SerialPort == "/dev/ttyACM0" {
		// Only worth mentioning when the guess wasn't overridden via flag.
		log.Printf("locating serial port failed, guessing: %s", c.finderr)
	}
	log.Printf("serial port = %s", c.SerialPort)
	port, err := serial.Open(c.SerialPort, &serial.Mode{BaudRate: c.Baud})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(30 * time.Second); err != nil {
		return nil, multierr.Append(err, port.Close())
	}
	return magnova.NewStreamTransport(port), nil
}
