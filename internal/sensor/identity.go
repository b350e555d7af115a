package sensor

import "strings"

// vendorNames maps *IDN? manufacturer prefixes to display names.
var vendorNames = []struct {
	prefix string
	name   string
}{
	{"lsci", "Lake Shore Cryotronics"},
	{"lakeshore", "Lake Shore Cryotronics"},
	{"cryomagnetics", "Cryomagnetics"},
	{"cmi", "Cryomagnetics"},
	{"oxford", "Oxford Instruments"},
}

// Identity is the parsed reply to an identification query:
// "manufacturer,model,serial,firmware".
type Identity struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
	Raw          string
}

// ParseIdentity splits an *IDN? reply. Missing fields stay empty.
func ParseIdentity(raw string) Identity {
	id := Identity{Raw: strings.TrimSpace(raw)}
	fields := strings.SplitN(id.Raw, ",", 4)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	dst := []*string{&id.Manufacturer, &id.Model, &id.Serial, &id.Firmware}
	for i, f := range fields {
		*dst[i] = f
	}
	return id
}

// FriendlyName returns the display name for a manufacturer field.
func FriendlyName(manufacturer string) string {
	lower := strings.ToLower(manufacturer)
	for _, entry := range vendorNames {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.name
		}
	}
	if manufacturer == "" {
		return "Unknown instrument"
	}
	return manufacturer
}

func (id Identity) String() string {
	var b strings.Builder
	b.WriteString(FriendlyName(id.Manufacturer))
	if id.Model != "" {
		b.WriteString(" " + id.Model)
	}
	if id.Serial != "" {
		b.WriteString(" s/n " + id.Serial)
	}
	if id.Firmware != "" {
		b.WriteString(" fw " + id.Firmware)
	}
	return b.String()
}
