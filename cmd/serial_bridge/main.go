// serial_bridge connects the simulated port to a real serial device on the
// host, so the driver's buffering and flow behaviour can be exercised
// against actual hardware: bytes read from the device are delivered into
// the simulated receive path, and everything the driver transmits is
// written back out to the device. With -echo the bridge loops received
// bytes straight back through the driver's transmit path.
package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	hostserial "github.com/tarm/serial"

	"github.com/aweatherguy/ArduinoCore-avr/serial"
)

func main() {
	var (
		device = flag.String("device", "/dev/ttyUSB0", "host serial device")
		baud   = flag.Int("baud", 115200, "host device baud rate")
		echo   = flag.Bool("echo", true, "echo received bytes back out")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	host, err := hostserial.OpenPort(&hostserial.Config{
		Name:        *device,
		Baud:        *baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		log.Fatal().Err(err).Str("device", *device).Msg("open failed")
	}
	defer host.Close()

	sim := serial.NewSim(16_000_000)
	port := serial.NewPort(sim)
	sim.Attach(port)
	if err := port.Begin(uint32(*baud), serial.Config8N1); err != nil {
		log.Fatal().Err(err).Msg("begin failed")
	}
	sim.Run()
	defer sim.Stop()

	if *echo {
		port.OnReceive(func() {
			var buf [64]byte
			n, _ := port.Read(buf[:])
			port.Write(buf[:n])
		})
	}

	// Device to driver.
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := host.Read(buf)
			for i := 0; i < n; i++ {
				sim.Push(buf[i])
			}
			if err != nil && err != io.EOF {
				log.Error().Err(err).Msg("device read failed")
				return
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	log.Info().Str("device", *device).Int("baud", *baud).Msg("bridge running")

	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-sig:
			stats := port.Stats()
			log.Info().
				Uint32("rx_interrupts", stats.RxInterrupts).
				Uint32("tx_interrupts", stats.TxInterrupts).
				Uint32("ring_drops", stats.RingDrops).
				Msg("bridge stopping")
			return
		case <-tick.C:
			serial.RunEvents(port)
			if out := sim.TakeWire(); len(out) > 0 {
				if _, err := host.Write(out); err != nil {
					log.Fatal().Err(err).Msg("device write failed")
				}
			}
		}
	}
}
