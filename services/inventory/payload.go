package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Raw payload shapes accepted from the platform fetchers. Decoding is
// strict: a payload with fields outside the union of the two platforms'
// schemas is rejected (quarantined into the run's error list) instead of
// being passed through untyped.

type vmCPUPayload struct {
	TotalVCPUs       int  `json:"total_vcpus"`
	NumSockets       int  `json:"num_sockets"`
	CoresPerSocket   int  `json:"cores_per_socket"`
	VCPUsPerSocket   int  `json:"vcpus_per_socket"`
	ThreadsPerCore   int  `json:"threads_per_core"`
	HotAddEnabled    bool `json:"hot_add_enabled"`
	HotRemoveEnabled bool `json:"hot_remove_enabled"`
}

type vmRAMPayload struct {
	SizeMiB        int  `json:"size_mib"`
	HotAddEnabled  bool `json:"hot_add_enabled"`
	HotAddLimitMiB int  `json:"hot_add_limit_mib"`
}

type vmSummaryPayload struct {
	TotalDisks      int     `json:"total_disks"`
	TotalDiskSizeGB float64 `json:"total_disk_size_gib"`
	TotalNICs       int     `json:"total_nics"`
}

type ipPayload struct {
	IP   string `json:"ip"`
	Type string `json:"type"`
}

type nicPayload struct {
	UUID        string      `json:"uuid"`
	Label       string      `json:"label"`
	MACAddress  string      `json:"mac_address"`
	NICType     string      `json:"nic_type"`
	Subnet      string      `json:"subnet"`  // nutanix
	Network     string      `json:"network"` // vmware, a network id
	VLANMode    string      `json:"vlan_mode"`
	IsConnected bool        `json:"is_connected"`
	State       string      `json:"state"`
	IPAddresses []ipPayload `json:"ip_addresses"`
}

type diskPayload struct {
	UUID             string  `json:"uuid"`
	Key              string  `json:"key"`
	Label            string  `json:"label"`
	DeviceType       string  `json:"device_type"`
	AdapterType      string  `json:"adapter_type"`
	SizeGB           float64 `json:"size_gib"`
	BackingType      string  `json:"backing_type"`
	VMDKFile         string  `json:"vmdk_file"`
	StorageContainer string  `json:"storage_container"`
	IsImage          bool    `json:"is_image"`
	SCSIBus          int     `json:"scsi_bus"`
	SCSIUnit         int     `json:"scsi_unit"`
	DeviceIndex      int     `json:"device_index"`
}

type vmPayload struct {
	UUID           string           `json:"uuid"`
	Name           string           `json:"name"`
	BIOSUUID       string           `json:"bios_uuid"`
	Status         string           `json:"status"`
	Cluster        string           `json:"cluster"`
	Host           string           `json:"host"`
	OSType         string           `json:"os_type"`
	OSFamily       string           `json:"os_family"`
	HostName       string           `json:"host_name"`
	HypervisorType string           `json:"hypervisor_type"`
	CreationDate   string           `json:"creation_date"`
	LastUpdateDate string           `json:"last_update_date"`
	CPU            vmCPUPayload     `json:"cpu"`
	RAM            vmRAMPayload     `json:"ram"`
	Summary        vmSummaryPayload `json:"summary"`
	NICs           []nicPayload     `json:"nics"`
	Disks          []diskPayload    `json:"disks"`
}

type hostPayload struct {
	UUID             string `json:"uuid"`
	Hostname         string `json:"hostname"`
	Cluster          string `json:"cluster"`
	Status           string `json:"status"`
	HypervisorIP     string `json:"hypervisor_ip"`
	HypervisorName   string `json:"hypervisor_name"`
	CPUModel         string `json:"cpu_model"`
	CPUCoresPhysical int    `json:"cpu_cores_physical"`
	RAMGB            int    `json:"ram_gb"`
}

type networkMappingPayload struct {
	Network string `json:"network"`
	Name    string `json:"name"`
}

type publicNetworkPayload struct {
	VMName           string `json:"vm_name"`
	SNATIP           string `json:"snat_ip"`
	DNATIP           string `json:"dnat_ip"`
	DNATExposedPorts string `json:"dnat_exposed_ports"`
	DNATSourceRegion string `json:"dnat_source_region"`
}

type dnsRecordPayload struct {
	Name        string `json:"name"`
	Target      string `json:"target"` // vm (default) or host
	InternalDNS string `json:"internal_dns"`
	ExternalDNS string `json:"external_dns"`
	SSLEnabled  bool   `json:"ssl_enabled"`
}

func decodeStrict(raw json.RawMessage, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// parseObjectPayload validates one raw VM or host payload and normalizes it
// into the typed snapshot: memory in GB, trimmed strings, NIC networks
// carried under the platform's display key.
func parseObjectPayload(platform Platform, resource ResourceType, raw json.RawMessage) (ObjectRef, FactSnapshot, error) {
	switch resource {
	case ResourceVM:
		return parseVMPayload(platform, raw)
	case ResourceHost:
		return parseHostPayload(platform, raw)
	}
	return ObjectRef{}, FactSnapshot{}, fmt.Errorf("resource %s has no object payload", resource)
}

func parseVMPayload(platform Platform, raw json.RawMessage) (ObjectRef, FactSnapshot, error) {
	var p vmPayload
	if err := decodeStrict(raw, &p); err != nil {
		return ObjectRef{}, FactSnapshot{}, &ValidationError{Field: "vm", Reason: err.Error()}
	}
	if strings.TrimSpace(p.UUID) == "" {
		return ObjectRef{}, FactSnapshot{}, &ValidationError{Field: "uuid", Reason: "missing vm uuid"}
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "Unknown"
	}
	ref := ObjectRef{
		Platform: platform,
		NativeID: strings.TrimSpace(p.UUID),
		Kind:     KindVM,
		Name:     name,
	}

	snap := FactSnapshot{
		PowerState:     normString(p.Status),
		ClusterName:    normString(p.Cluster),
		HostIdentifier: normString(p.Host),
		Hostname:       normString(p.HostName),
		OSType:         normString(p.OSType),
		OSFamily:       normString(p.OSFamily),
		CPUCount:       p.CPU.TotalVCPUs,
		NumSockets:     p.CPU.NumSockets,
		CoresPerSocket: p.CPU.CoresPerSocket,
		MemoryGB:       roundGB(float64(p.RAM.SizeMiB) / 1024),
		TotalDiskGB:    roundGB(p.Summary.TotalDiskSizeGB),
	}

	for _, d := range p.Disks {
		disk := DiskFact{
			DiskUUID:    normString(d.UUID),
			DiskKey:     normString(d.Key),
			Label:       normString(d.Label),
			DeviceType:  normString(d.DeviceType),
			AdapterType: normString(d.AdapterType),
			SizeGB:      roundGB(d.SizeGB),
		}
		if disk.DiskKey == "" && d.DeviceIndex > 0 {
			disk.DiskKey = fmt.Sprintf("index-%d", d.DeviceIndex)
		}
		snap.Disks = append(snap.Disks, disk)
	}

	for _, n := range p.NICs {
		network := normString(n.Subnet)
		if network == "" {
			network = normString(n.Network)
		}
		nic := NICFact{
			MACAddress:  strings.ToLower(normString(n.MACAddress)),
			NetworkName: network,
			NICType:     normString(n.NICType),
			Connected:   n.IsConnected,
		}
		seen := make(map[string]struct{}, len(n.IPAddresses))
		for _, ip := range n.IPAddresses {
			addr := normString(ip.IP)
			if addr == "" {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			nic.IPs = append(nic.IPs, IPAddress{Address: addr, Type: normString(ip.Type)})
		}
		snap.NICs = append(snap.NICs, nic)
	}

	return ref, snap, nil
}

func parseHostPayload(platform Platform, raw json.RawMessage) (ObjectRef, FactSnapshot, error) {
	var p hostPayload
	if err := decodeStrict(raw, &p); err != nil {
		return ObjectRef{}, FactSnapshot{}, &ValidationError{Field: "host", Reason: err.Error()}
	}

	nativeID := normString(p.UUID)
	hostname := normString(p.Hostname)
	if nativeID == "" {
		nativeID = hostname
	}
	if nativeID == "" {
		return ObjectRef{}, FactSnapshot{}, &ValidationError{Field: "host", Reason: "missing host uuid and hostname"}
	}
	name := hostname
	if name == "" {
		name = nativeID
	}

	ref := ObjectRef{
		Platform: platform,
		NativeID: nativeID,
		Kind:     KindHost,
		Name:     name,
	}
	snap := FactSnapshot{
		PowerState:     normString(p.Status),
		ClusterName:    normString(p.Cluster),
		HostIdentifier: normString(p.HypervisorIP),
		Hostname:       hostname,
		OSType:         normString(p.HypervisorName),
		CPUCount:       p.CPUCoresPhysical,
		MemoryGB:       roundGB(float64(p.RAMGB)),
	}
	return ref, snap, nil
}

// retainKnownIPs keeps previously known routable addresses for a NIC whose
// fresh report carries only link-local (or no) addresses. Guest agents drop
// out intermittently; losing a good address to an APIPA-only report would
// flap the audit log.
func retainKnownIPs(old, next *FactSnapshot) {
	if old == nil || next == nil {
		return
	}

	validByMAC := make(map[string][]IPAddress)
	for _, nic := range old.NICs {
		if nic.MACAddress == "" {
			continue
		}
		var valid []IPAddress
		for _, ip := range nic.IPs {
			if ip.Address != "" && !strings.HasPrefix(ip.Address, apipaPrefix) {
				valid = append(valid, ip)
			}
		}
		if len(valid) > 0 {
			validByMAC[nic.MACAddress] = valid
		}
	}

	for i := range next.NICs {
		nic := &next.NICs[i]
		if nic.MACAddress == "" {
			continue
		}
		hasRoutable := false
		for _, ip := range nic.IPs {
			if ip.Address != "" && !strings.HasPrefix(ip.Address, apipaPrefix) {
				hasRoutable = true
				break
			}
		}
		if hasRoutable {
			continue
		}
		if valid, ok := validByMAC[nic.MACAddress]; ok {
			nic.IPs = append([]IPAddress(nil), valid...)
		}
	}
}
