// Command wiihost-pair opens a HCI user channel on the first available
// Bluetooth adapter, waits for a Wii Balance Board to be put into
// discoverable mode (press the red sync button), pairs with it, and
// prints calibrated weight readings until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/gowii/wiihost"
	"github.com/gowii/wiihost/transport/hcisocket"
)

func main() {
	adapter := flag.Int("adapter", -1, "HCI adapter index to bind (-1 for the first available)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log := logrus.StandardLogger()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	sock, err := openAdapter(*adapter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wiihost-pair:", err)
		os.Exit(1)
	}
	defer sock.Close()

	station, err := wiihost.NewStation(sock,
		wiihost.WithStationLogger(log),
		wiihost.WithEventHandler(func(ev wiihost.Event) {
			switch e := ev.(type) {
			case wiihost.ScanStarted:
				log.Info("scanning for a balance board")
			case wiihost.ScanStopped:
				log.Info("scan window closed")
			case wiihost.BalanceBoardConnected:
				log.WithField("handle", e.Handle).Info("balance board connected")
			case wiihost.BalanceBoardDisconnected:
				log.WithField("handle", e.Handle).Info("balance board disconnected")
			case wiihost.BalanceBoardData:
				total := int(e.TR) + int(e.BR) + int(e.TL) + int(e.BL)
				fmt.Printf("TR=%5dg BR=%5dg TL=%5dg BL=%5dg total=%5dg battery=%d%%\n",
					e.TR, e.BR, e.TL, e.BL, total, e.BatteryLevel)
			}
		}),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wiihost-pair:", err)
		os.Exit(1)
	}

	reader := make(chan []byte, 64)
	go readLoop(sock, log, reader)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	station.Process() // write the RESET that NewStation queued
	scanning := false
	for {
		select {
		case frame := <-reader:
			station.Receive(frame)
			station.Process()
			if !scanning {
				scanning = station.Scan()
			}
			station.Process() // write whatever the dispatch queued
		case <-sigs:
			return
		}
	}
}

func openAdapter(id int) (*hcisocket.Socket, error) {
	if id >= 0 {
		return hcisocket.Open(id)
	}
	return hcisocket.OpenFirstAvailable()
}

// readLoop pulls H4 frames off the socket and hands them to the
// station's single-threaded Process loop over a channel; it never calls
// into the station directly, since Process is not safe to call
// concurrently with itself.
func readLoop(sock *hcisocket.Socket, log *logrus.Logger, out chan<- []byte) {
	var buf [1024]byte
	for {
		n, err := sock.Read(buf[:])
		if err != nil {
			log.WithError(err).Error("hci socket read failed")
			close(out)
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		out <- frame
	}
}
