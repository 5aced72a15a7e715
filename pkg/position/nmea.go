package position

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"tracetrip/pkg/model"
)

// staleFix is how old a serial fix may be before Capture refuses to
// return it and reports ErrUnavailable instead.
const staleFix = 10 * time.Second

// NMEASource reads NMEA 0183 sentences from a serial GPS receiver. A
// background goroutine keeps the latest fix current; Capture returns it
// when fresh enough for the requested profile.
type NMEASource struct {
	lastKnownCache

	port serial.Port
	log  *slog.Logger

	mu      sync.Mutex
	current Fix
	hasFix  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewNMEASource opens the serial port and starts the reader goroutine.
func NewNMEASource(portName string, baudRate int) (*NMEASource, error) {
	mode := &serial.Mode{BaudRate: baudRate}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", portName, err)
	}

	s := &NMEASource{
		port: port,
		log:  slog.With("component", "nmea"),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

func (s *NMEASource) readLoop() {
	defer s.wg.Done()

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		select {
		case <-s.done:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, ok := ParseSentence(line)
		if !ok {
			continue
		}
		s.mu.Lock()
		// RMC carries speed and course, GGA carries altitude. Merge so
		// a GGA arriving after an RMC does not wipe the motion fields.
		if fix.Speed == nil {
			fix.Speed = s.current.Speed
		}
		if fix.Heading == nil {
			fix.Heading = s.current.Heading
		}
		if fix.Altitude == nil {
			fix.Altitude = s.current.Altitude
		}
		s.current = fix
		s.hasFix = true
		s.mu.Unlock()
		s.remember(fix)
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-s.done:
		default:
			s.log.Warn("serial read failed", "error", err)
		}
	}
}

func (s *NMEASource) Capture(ctx context.Context, p Profile) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}

	s.mu.Lock()
	fix, ok := s.current, s.hasFix
	s.mu.Unlock()

	if !ok {
		return Fix{}, ErrUnavailable
	}

	maxAge := staleFix
	if p == AccuracyLow {
		maxAge = 2 * staleFix
	}
	if time.Since(fix.Time) > maxAge {
		return Fix{}, ErrUnavailable
	}
	return fix, nil
}

func (s *NMEASource) ServiceEnabled() bool {
	return true
}

func (s *NMEASource) Close() error {
	close(s.done)
	err := s.port.Close()
	s.wg.Wait()
	return err
}

// ParseSentence extracts a fix from a single NMEA sentence. Only RMC and
// GGA sentences produce fixes; everything else returns ok=false.
func ParseSentence(line string) (Fix, bool) {
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false
	}
	if i := strings.IndexByte(line, '*'); i >= 0 {
		if !checksumValid(line, i) {
			return Fix{}, false
		}
		line = line[:i]
	}

	fields := strings.Split(line[1:], ",")
	if len(fields) == 0 {
		return Fix{}, false
	}

	talker := fields[0]
	switch {
	case strings.HasSuffix(talker, "RMC"):
		return parseRMC(fields)
	case strings.HasSuffix(talker, "GGA"):
		return parseGGA(fields)
	}
	return Fix{}, false
}

func checksumValid(line string, star int) bool {
	if star+3 > len(line) {
		return false
	}
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	if err != nil {
		return false
	}
	var sum byte
	for i := 1; i < star; i++ {
		sum ^= line[i]
	}
	return sum == byte(want)
}

// parseRMC handles $xxRMC: time, status, lat, NS, lon, EW, speed(knots),
// course, date, ...
func parseRMC(f []string) (Fix, bool) {
	if len(f) < 10 || f[2] != "A" {
		return Fix{}, false
	}
	lat, err := parseCoord(f[3], f[4])
	if err != nil {
		return Fix{}, false
	}
	lon, err := parseCoord(f[5], f[6])
	if err != nil {
		return Fix{}, false
	}

	fix := Fix{Lat: lat, Lon: lon, Time: time.Now()}
	if kn, err := strconv.ParseFloat(f[7], 64); err == nil {
		fix.Speed = model.Float64(kn * 0.514444)
	}
	if crs, err := strconv.ParseFloat(f[8], 64); err == nil {
		fix.Heading = model.Float64(crs)
	}
	return fix, true
}

// parseGGA handles $xxGGA: time, lat, NS, lon, EW, quality, sats, HDOP,
// altitude, ...
func parseGGA(f []string) (Fix, bool) {
	if len(f) < 10 || f[6] == "0" || f[6] == "" {
		return Fix{}, false
	}
	lat, err := parseCoord(f[2], f[3])
	if err != nil {
		return Fix{}, false
	}
	lon, err := parseCoord(f[4], f[5])
	if err != nil {
		return Fix{}, false
	}

	fix := Fix{Lat: lat, Lon: lon, Time: time.Now()}
	if hdop, err := strconv.ParseFloat(f[8], 64); err == nil {
		// Rough horizontal error estimate from dilution of precision.
		fix.Accuracy = model.Float64(hdop * 5.0)
	}
	if alt, err := strconv.ParseFloat(f[9], 64); err == nil {
		fix.Altitude = model.Float64(alt)
	}
	return fix, true
}

// parseCoord converts NMEA ddmm.mmmm (or dddmm.mmmm) plus hemisphere into
// signed decimal degrees.
func parseCoord(value, hemi string) (float64, error) {
	if value == "" || hemi == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	dot := strings.IndexByte(value, '.')
	if dot < 3 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	deg, err := strconv.ParseFloat(value[:dot-2], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil {
		return 0, err
	}
	dd := deg + min/60.0
	switch hemi {
	case "S", "W":
		dd = -dd
	case "N", "E":
	default:
		return 0, fmt.Errorf("unknown hemisphere %q", hemi)
	}
	return dd, nil
}
