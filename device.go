package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"murmur/audio"
)

// selectDevice presents an interactive input-device picker on the terminal.
// Loopback devices are labelled so the user can tell them from real
// microphones.
func selectDevice(ctx audio.Context) (*audio.DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}
	if len(devices) == 1 {
		fmt.Printf("Using device: %s\n", devices[0].Name)
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	label := func(d audio.DeviceInfo) string {
		if audio.IsLoopback(d.Name) {
			return d.Name + " (loopback)"
		}
		if audio.IsBluetooth(d.Name) {
			return d.Name + " (BT)"
		}
		return d.Name
	}

	cursor := 0
	render := func() {
		fmt.Print("\r\x1b[J")
		fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
		for i, d := range devices {
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s\x1b[0m\r\n", label(d))
			} else {
				fmt.Printf("    %s\r\n", label(d))
			}
		}
	}
	render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		switch {
		case n == 1 && buf[0] == 13: // Enter
			fmt.Print("\r\n")
			return &devices[cursor], nil
		case n == 1 && buf[0] == 3: // Ctrl+C
			fmt.Print("\r\n")
			term.Restore(fd, oldState)
			os.Exit(0)
		case n == 1 && buf[0] == 'j':
			if cursor < len(devices)-1 {
				cursor++
			}
		case n == 1 && buf[0] == 'k':
			if cursor > 0 {
				cursor--
			}
		case n == 3 && buf[0] == 0x1b && buf[1] == '[':
			switch buf[2] {
			case 'A':
				if cursor > 0 {
					cursor--
				}
			case 'B':
				if cursor < len(devices)-1 {
					cursor++
				}
			}
		}

		// Move back to the top of the list and redraw.
		fmt.Printf("\x1b[%dA", len(devices)+2)
		render()
	}
}

func listDevices(ctx audio.Context) error {
	inputs, err := ctx.Devices()
	if err != nil {
		return fmt.Errorf("enumerating input devices: %w", err)
	}
	fmt.Println("Input devices:")
	fmt.Println("   0) system default")
	for i, d := range inputs {
		extra := ""
		if audio.IsLoopback(d.Name) {
			extra = " [loopback]"
		}
		fmt.Printf("  %2d) %s%s\n", i+1, d.Name, extra)
	}

	outputs, err := ctx.OutputDevices()
	if err != nil {
		return fmt.Errorf("enumerating output devices: %w", err)
	}
	fmt.Println("Output devices:")
	for i, d := range outputs {
		fmt.Printf("  %2d) %s\n", i, d.Name)
	}
	return nil
}
