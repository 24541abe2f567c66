package inventory

import (
	"sort"
	"strings"
)

// apipaPrefix marks link-local addresses that should never win primary IP
// selection when a routable address exists.
const apipaPrefix = "169.254."

// Resolve computes the effective view of an object by applying override
// precedence to its latest fact snapshot: enabled override > fact > absent.
// It is pure: no I/O, no mutation of its inputs, O(fields + overrides).
//
// NIC IP overrides (field "nic_ip/<network name>") are matched to a NIC by
// its network display name. An override whose label matches no NIC is
// retained in storage but ignored here.
func Resolve(obj InventoryObject, snap *FactSnapshot, overrides map[string]Override) EffectiveObject {
	eff := EffectiveObject{InventoryObject: obj}
	if snap != nil {
		eff.FactSnapshot = *snap
		eff.NICs = cloneNICs(snap.NICs)
	}

	for _, spec := range scalarFields {
		ov, ok := overrides[spec.name]
		if !ok || !ov.Enabled {
			continue
		}
		if err := spec.apply(&eff.FactSnapshot, ov.Value); err != nil {
			// A stored override that no longer parses is treated as inert
			// rather than failing every read of the object.
			continue
		}
		eff.Overridden = append(eff.Overridden, spec.name)
	}

	for field, ov := range overrides {
		if !ov.Enabled {
			continue
		}
		label, ok := strings.CutPrefix(field, NICIPOverridePrefix)
		if !ok {
			continue
		}
		for i := range eff.NICs {
			if eff.NICs[i].NetworkName != label {
				continue
			}
			eff.NICs[i].IPs = []IPAddress{{Address: strings.TrimSpace(ov.Value), Type: "MANUAL"}}
			eff.Overridden = append(eff.Overridden, field)
			break
		}
	}

	sort.Strings(eff.Overridden)
	eff.PrimaryIP = primaryIP(eff.NICs)
	return eff
}

// primaryIP picks the first routable address across NICs, falling back to a
// link-local one when nothing better was reported.
func primaryIP(nics []NICFact) string {
	fallback := ""
	for _, nic := range nics {
		for _, ip := range nic.IPs {
			if ip.Address == "" {
				continue
			}
			if !strings.HasPrefix(ip.Address, apipaPrefix) {
				return ip.Address
			}
			if fallback == "" {
				fallback = ip.Address
			}
		}
	}
	return fallback
}

func cloneNICs(nics []NICFact) []NICFact {
	if nics == nil {
		return nil
	}
	out := make([]NICFact, len(nics))
	for i, nic := range nics {
		out[i] = nic
		if nic.IPs != nil {
			out[i].IPs = append([]IPAddress(nil), nic.IPs...)
		}
	}
	return out
}
