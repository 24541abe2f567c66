package inventory

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// diskKey identifies a disk across snapshots: platform UUID when present,
// otherwise the platform device key, otherwise the label.
func diskKey(d DiskFact) string {
	if d.DiskUUID != "" {
		return d.DiskUUID
	}
	if d.DiskKey != "" {
		return d.DiskKey
	}
	return d.Label
}

// diskSizeEpsilon absorbs float noise between platform reports of the same
// disk size.
const diskSizeEpsilon = 0.01

// Detect compares two fact snapshots of one object and returns the change
// records to append to the audit log. A nil old snapshot means the object
// was first seen by this run: creation is not a change event, so nothing is
// emitted. Emission order is deterministic: scalar fields in registry order,
// then disks, NICs, and IPs.
func Detect(objectID uuid.UUID, old, current *FactSnapshot, runID uuid.UUID, at time.Time) []ChangeRecord {
	if old == nil || current == nil {
		return nil
	}

	var records []ChangeRecord
	add := func(ct ChangeType, field, oldVal, newVal string) {
		records = append(records, ChangeRecord{
			ObjectID:   objectID,
			SyncRunID:  runID,
			ChangeType: ct,
			FieldName:  field,
			OldValue:   oldVal,
			NewValue:   newVal,
			ChangedAt:  at,
		})
	}

	for _, spec := range scalarFields {
		if spec.change == "" {
			continue
		}
		oldVal, newVal := spec.get(old), spec.get(current)
		if oldVal != newVal && (oldVal != "" || newVal != "") {
			add(spec.change, spec.name, oldVal, newVal)
		}
	}

	detectDiskChanges(old.Disks, current.Disks, add)
	detectNICChanges(old.NICs, current.NICs, add)
	detectIPChanges(old.NICs, current.NICs, add)

	return records
}

func detectDiskChanges(old, current []DiskFact, add func(ChangeType, string, string, string)) {
	oldByKey := make(map[string]DiskFact, len(old))
	for _, d := range old {
		oldByKey[diskKey(d)] = d
	}
	currentByKey := make(map[string]DiskFact, len(current))
	for _, d := range current {
		currentByKey[diskKey(d)] = d
	}

	for _, d := range current {
		if _, ok := oldByKey[diskKey(d)]; !ok {
			add(ChangeDisk, "disk_added", "", describeDisk(d))
		}
	}
	for _, d := range old {
		if _, ok := currentByKey[diskKey(d)]; !ok {
			add(ChangeDisk, "disk_removed", describeDisk(d), "")
		}
	}
	for _, d := range old {
		cur, ok := currentByKey[diskKey(d)]
		if !ok {
			continue
		}
		if math.Abs(cur.SizeGB-d.SizeGB) > diskSizeEpsilon {
			add(ChangeDisk, "disk_size_changed", describeDisk(d), describeDisk(cur))
		}
	}
}

func detectNICChanges(old, current []NICFact, add func(ChangeType, string, string, string)) {
	oldByMAC := nicsByMAC(old)
	currentByMAC := nicsByMAC(current)

	for _, nic := range current {
		if nic.MACAddress == "" {
			continue
		}
		if _, ok := oldByMAC[nic.MACAddress]; !ok {
			add(ChangeNIC, "nic_added", "", describeNIC(nic))
		}
	}
	for _, nic := range old {
		if nic.MACAddress == "" {
			continue
		}
		if _, ok := currentByMAC[nic.MACAddress]; !ok {
			add(ChangeNIC, "nic_removed", describeNIC(nic), "")
		}
	}
}

// detectIPChanges compares addresses as one set per object rather than per
// NIC, so an address migrating between interfaces is not reported as a
// remove plus an add.
func detectIPChanges(old, current []NICFact, add func(ChangeType, string, string, string)) {
	oldIPs := collectIPs(old)
	currentIPs := collectIPs(current)

	for _, ip := range currentIPs.ordered {
		if !oldIPs.has(ip) {
			add(ChangeIP, "ip_added", "", ip)
		}
	}
	for _, ip := range oldIPs.ordered {
		if !currentIPs.has(ip) {
			add(ChangeIP, "ip_removed", ip, "")
		}
	}
}

type ipSet struct {
	ordered []string
	members map[string]struct{}
}

func (s ipSet) has(ip string) bool {
	_, ok := s.members[ip]
	return ok
}

func collectIPs(nics []NICFact) ipSet {
	s := ipSet{members: make(map[string]struct{})}
	for _, nic := range nics {
		for _, ip := range nic.IPs {
			if ip.Address == "" {
				continue
			}
			if _, seen := s.members[ip.Address]; seen {
				continue
			}
			s.members[ip.Address] = struct{}{}
			s.ordered = append(s.ordered, ip.Address)
		}
	}
	return s
}

func nicsByMAC(nics []NICFact) map[string]NICFact {
	byMAC := make(map[string]NICFact, len(nics))
	for _, nic := range nics {
		if nic.MACAddress != "" {
			byMAC[nic.MACAddress] = nic
		}
	}
	return byMAC
}

func describeDisk(d DiskFact) string {
	label := d.Label
	if label == "" {
		label = "Unknown"
	}
	return fmt.Sprintf("%s (%g GB)", label, roundGB(d.SizeGB))
}

func describeNIC(n NICFact) string {
	network := n.NetworkName
	if network == "" {
		network = "Unknown"
	}
	return fmt.Sprintf("%s (%s)", network, n.MACAddress)
}
