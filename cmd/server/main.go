package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aicodix/cofdmtv/internal/audio"
	"github.com/aicodix/cofdmtv/internal/modem"
	"github.com/aicodix/cofdmtv/internal/server"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:8080", "Server address")
	uploadDir := flag.String("upload-dir", "./uploads", "Upload directory")
	receiveDir := flag.String("receive-dir", "./received", "Receive directory")
	listDevices := flag.Bool("list-devices", false, "List audio devices and exit")
	rate := flag.Int("rate", 8000, "COFDMTV sample rate (8000, 16000, 32000, 44100, 48000)")
	carrierHz := flag.Float64("carrier", 1500, "Carrier frequency in Hz")
	callSign := flag.String("callsign", "NOCALL", "Default call sign (up to 9 base-37 characters)")
	flag.Parse()

	rt := modem.Rate(*rate)
	supported := false
	for _, s := range modem.SupportedRates {
		if rt == s {
			supported = true
			break
		}
	}
	if !supported {
		log.Fatalf("unsupported sample rate %d", *rate)
	}

	// Initialize PortAudio
	if err := audio.Init(); err != nil {
		log.Fatalf("Failed to initialize PortAudio: %v", err)
	}
	defer audio.Terminate()

	if *listDevices {
		if err := audio.PrintDevices(); err != nil {
			log.Fatalf("Failed to list devices: %v", err)
		}
		return
	}

	// Create directories
	os.MkdirAll(*uploadDir, 0755)
	os.MkdirAll(*receiveDir, 0755)

	// Create handlers and server
	handlers := server.NewHandlers(*uploadDir, *receiveDir, rt, *carrierHz, *callSign)
	srv := server.NewServer(*addr, handlers, "./web/static")

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		audio.Terminate()
		os.Exit(0)
	}()

	// Start server
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
