package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/transport"
)

// serialSettle is how long a freshly opened serial port gets before the
// first query; USB adapters drop bytes written immediately after open.
const serialSettle = 500 * time.Millisecond

// UnidentifiedLabel marks a responsive port whose *IDN? reply matched no
// known instrument family.
const UnidentifiedLabel = "unidentified"

// Info describes one discovered instrument.
type Info struct {
	// ID is the stable identifier used as the pool and buffer key: the
	// model label plus the resource, e.g. "DP711@ASRL3::INSTR".
	ID string
	// Identity is the raw *IDN? reply.
	Identity string
	// Model is the recognized family label, or UnidentifiedLabel.
	Model string
	// Kind is the device class when recognized.
	Kind instrument.Kind
	// Resource is the VISA resource string the device answered on.
	Resource string
}

// knownModels maps an *IDN? substring to the family label and device class.
// Matching is case-insensitive, first hit wins.
var knownModels = []struct {
	marker string
	label  string
	kind   instrument.Kind
}{
	{"2461", "2461", instrument.KindSourceMeter},
	{"DP711", "DP711", instrument.KindPowerSupply},
}

// identifyQueries is tried in order. *IDN? answers on anything SCPI; the
// error-queue and operation-complete queries catch devices whose
// identification query is broken but that still talk.
var identifyQueries = []string{"*IDN?", ":SYST:ERR?", "*OPC?"}

// Identify runs the SCPI identification handshake over the transport,
// classifying the device from the first non-empty reply. Only opening the
// transport can fail: a port that opens but stays silent on every query is
// still reported, tagged UnidentifiedLabel with an empty identity, since a
// present port is worth listing even when nothing answers. The transport is
// opened and closed here.
func Identify(tr transport.Transport) (Info, error) {
	if err := tr.Open(); err != nil {
		return Info{}, fmt.Errorf("open %s: %w", tr.Endpoint(), err)
	}
	defer tr.Close()

	if _, ok := tr.(*transport.Serial); ok {
		time.Sleep(serialSettle)
	}

	info := Info{
		Model:    UnidentifiedLabel,
		Kind:     instrument.KindUnknown,
		Resource: tr.Endpoint(),
	}

	for _, q := range identifyQueries {
		resp, err := tr.Query(q)
		if err != nil {
			// Silence on one query does not condemn the port; try the next.
			continue
		}

		resp = strings.TrimSpace(resp)
		if info.Identity == "" && resp != "" {
			info.Identity = resp
		}
	}

	upper := strings.ToUpper(info.Identity)
	for _, m := range knownModels {
		if strings.Contains(upper, strings.ToUpper(m.marker)) {
			info.Model = m.label
			info.Kind = m.kind

			break
		}
	}

	info.ID = info.Model + "@" + info.Resource

	return info, nil
}

// NewDriver builds the concrete driver for a recognized Info. Unrecognized
// devices have no driver and return instrument.ErrInvalidFunction.
func NewDriver(info Info, tr transport.Transport, opts ...instrument.Option) (instrument.Instrument, error) {
	switch info.Kind {
	case instrument.KindSourceMeter:
		return instrument.NewKeithley2461(tr, opts...), nil
	case instrument.KindPowerSupply:
		return instrument.NewRigolDP711(tr, opts...), nil
	default:
		return nil, fmt.Errorf("%w: no driver for %q", instrument.ErrInvalidFunction, info.Model)
	}
}
