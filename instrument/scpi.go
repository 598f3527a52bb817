package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-scpi/logger"
	"github.com/arloliu/go-scpi/transport"
	"github.com/arloliu/go-scpi/unit"
)

// maxErrorQueuePolls bounds CheckErrors so a device that keeps reporting
// faults (or echoes garbage forever) cannot spin the driver.
const maxErrorQueuePolls = 20

// scpiBase carries the transport plumbing shared by every SCPI driver:
// newline-framed send/query with a not-connected guard, identity caching and
// verification, and error-queue draining.
type scpiBase struct {
	tr       transport.Transport
	logger   logger.Logger
	name     string
	idMarker []string // any of these substrings accepts the *IDN? reply
	identity string
}

func (b *scpiBase) send(cmd string) error {
	if !b.tr.Connected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, b.name)
	}

	b.logger.Debug("send command", "instrument", b.name, "cmd", cmd)

	return b.tr.Send(cmd)
}

func (b *scpiBase) query(cmd string) (string, error) {
	if !b.tr.Connected() {
		return "", fmt.Errorf("%w: %s", ErrNotConnected, b.name)
	}

	resp, err := b.tr.Query(cmd)
	if err != nil {
		return "", err
	}

	b.logger.Debug("query", "instrument", b.name, "cmd", cmd, "resp", resp)

	return strings.TrimSpace(resp), nil
}

func (b *scpiBase) queryFloat(cmd string) (float64, error) {
	resp, err := b.query(cmd)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric (query %s)", ErrMalformedResponse, resp, cmd)
	}

	return v, nil
}

// verifyIdentity queries *IDN? and requires the reply to contain one of the
// driver's marker substrings. A mismatch is an error, not a silent success:
// accepting an arbitrary device behind the address risks programming the
// wrong hardware.
func (b *scpiBase) verifyIdentity() error {
	resp, err := b.query("*IDN?")
	if err != nil {
		return err
	}

	for _, marker := range b.idMarker {
		if strings.Contains(strings.ToUpper(resp), strings.ToUpper(marker)) {
			b.identity = resp
			return nil
		}
	}

	return fmt.Errorf("%w: %s answered %q, expected one of %v", ErrIdentityMismatch, b.tr.Endpoint(), resp, b.idMarker)
}

func (b *scpiBase) cachedIdentity() (string, error) {
	if b.identity != "" {
		return b.identity, nil
	}

	resp, err := b.query("*IDN?")
	if err != nil {
		return "", err
	}
	b.identity = resp

	return resp, nil
}

// drainErrorQueue polls :SYST:ERR? until the instrument reports "0," (no
// error) or the poll bound is hit.
func (b *scpiBase) drainErrorQueue() ([]string, error) {
	var faults []string

	for i := 0; i < maxErrorQueuePolls; i++ {
		resp, err := b.query(":SYST:ERR?")
		if err != nil {
			return faults, err
		}

		if strings.HasPrefix(resp, "0,") || strings.HasPrefix(resp, "+0,") {
			return faults, nil
		}

		faults = append(faults, resp)
	}

	b.logger.Warn("error queue still not empty after max polls",
		"instrument", b.name, "polls", maxErrorQueuePolls)

	return faults, nil
}

// parseNumericFields splits a batched SCPI reply into float fields. Chained
// query replies are separated by semicolons, multi-value replies by commas;
// both occur in the wild, so split on either.
func parseNumericFields(resp string) ([]float64, error) {
	raw := strings.FieldsFunc(resp, func(r rune) bool {
		return r == ';' || r == ','
	})

	fields := make([]float64, 0, len(raw))
	for _, f := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return fields, fmt.Errorf("%w: field %q in %q", ErrMalformedResponse, f, resp)
		}
		fields = append(fields, v)
	}

	return fields, nil
}

// normalizeLevel converts a source level or compliance limit to base units.
// Accepted inputs are float64, int, or an engineering-prefixed string.
func normalizeLevel(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case string:
		f, err := unit.Parse(val)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrValueOutOfRange, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported level type %T", ErrValueOutOfRange, v)
	}
}

// formatLevel renders a base-unit value the way SCPI expects it on the wire;
// instruments reject unit suffixes in command arguments.
func formatLevel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
