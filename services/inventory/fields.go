package inventory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NICIPOverridePrefix prefixes override field names that target one NIC's IP
// address. The remainder of the field name is the NIC's network display
// name, which is the documented join key: an override whose label matches no
// NIC stays stored but is inert for display.
const NICIPOverridePrefix = "nic_ip/"

// fieldSpec describes one scalar snapshot field: how to read its normalized
// string form, how to write an override value back, and which change type a
// transition maps to. A zero change type means the field is overridable but
// its transitions are not audited.
type fieldSpec struct {
	name   string
	change ChangeType
	get    func(*FactSnapshot) string
	apply  func(*FactSnapshot, string) error
}

// scalarFields is the field registry. Declaration order is the emission
// order of change records within one detect call.
var scalarFields = []fieldSpec{
	{
		name:   "power_state",
		change: ChangePowerState,
		get:    func(s *FactSnapshot) string { return normString(s.PowerState) },
		apply: func(s *FactSnapshot, v string) error {
			s.PowerState = normString(v)
			return nil
		},
	},
	{
		name:   "cpu_count",
		change: ChangeCPU,
		get:    func(s *FactSnapshot) string { return normInt(s.CPUCount) },
		apply: func(s *FactSnapshot, v string) error {
			n, err := parseIntValue("cpu_count", v)
			if err != nil {
				return err
			}
			s.CPUCount = n
			return nil
		},
	},
	{
		name:   "num_sockets",
		change: ChangeCPU,
		get:    func(s *FactSnapshot) string { return normInt(s.NumSockets) },
		apply: func(s *FactSnapshot, v string) error {
			n, err := parseIntValue("num_sockets", v)
			if err != nil {
				return err
			}
			s.NumSockets = n
			return nil
		},
	},
	{
		name:   "cores_per_socket",
		change: ChangeCPU,
		get:    func(s *FactSnapshot) string { return normInt(s.CoresPerSocket) },
		apply: func(s *FactSnapshot, v string) error {
			n, err := parseIntValue("cores_per_socket", v)
			if err != nil {
				return err
			}
			s.CoresPerSocket = n
			return nil
		},
	},
	{
		name:   "memory_gb",
		change: ChangeMemory,
		get:    func(s *FactSnapshot) string { return normFloat(s.MemoryGB) },
		apply: func(s *FactSnapshot, v string) error {
			f, err := parseFloatValue("memory_gb", v)
			if err != nil {
				return err
			}
			s.MemoryGB = f
			return nil
		},
	},
	{
		name:   "total_disk_gb",
		change: ChangeDisk,
		get:    func(s *FactSnapshot) string { return normFloat(s.TotalDiskGB) },
		apply: func(s *FactSnapshot, v string) error {
			f, err := parseFloatValue("total_disk_gb", v)
			if err != nil {
				return err
			}
			s.TotalDiskGB = f
			return nil
		},
	},
	{
		name:   "host_identifier",
		change: ChangeHost,
		get:    func(s *FactSnapshot) string { return normString(s.HostIdentifier) },
		apply: func(s *FactSnapshot, v string) error {
			s.HostIdentifier = normString(v)
			return nil
		},
	},
	{
		name:   "cluster_name",
		change: ChangeCluster,
		get:    func(s *FactSnapshot) string { return normString(s.ClusterName) },
		apply: func(s *FactSnapshot, v string) error {
			s.ClusterName = normString(v)
			return nil
		},
	},
	{
		name: "hostname",
		get:  func(s *FactSnapshot) string { return normString(s.Hostname) },
		apply: func(s *FactSnapshot, v string) error {
			s.Hostname = normString(v)
			return nil
		},
	},
	{
		name: "os_type",
		get:  func(s *FactSnapshot) string { return normString(s.OSType) },
		apply: func(s *FactSnapshot, v string) error {
			s.OSType = normString(v)
			return nil
		},
	},
	{
		name: "os_family",
		get:  func(s *FactSnapshot) string { return normString(s.OSFamily) },
		apply: func(s *FactSnapshot, v string) error {
			s.OSFamily = normString(v)
			return nil
		},
	},
}

func fieldByName(name string) (fieldSpec, bool) {
	for _, f := range scalarFields {
		if f.name == name {
			return f, true
		}
	}
	return fieldSpec{}, false
}

// ValidateOverride checks that field names a known override target and value
// parses for that field's type. NIC IP overrides require a non-empty network
// label and a non-empty value.
func ValidateOverride(field, value string) error {
	if label, ok := strings.CutPrefix(field, NICIPOverridePrefix); ok {
		if strings.TrimSpace(label) == "" {
			return &ValidationError{Field: field, Reason: "missing network label"}
		}
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Reason: "empty ip address"}
		}
		return nil
	}

	spec, ok := fieldByName(field)
	if !ok {
		return &ValidationError{Field: field, Reason: "unknown field"}
	}
	var probe FactSnapshot
	return spec.apply(&probe, value)
}

func normString(v string) string { return strings.TrimSpace(v) }

func normInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// normFloat renders a canonical form rounded to two decimals so that values
// expressed with different precision by the two platforms compare equal.
func normFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(roundGB(v), 'f', -1, 64)
}

func roundGB(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseIntValue(field, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a non-negative integer", v)}
	}
	return n, nil
}

func parseFloatValue(field, v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0, &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a non-negative number", v)}
	}
	return f, nil
}
