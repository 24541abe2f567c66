package inventory

import (
	"encoding/json"
	"testing"
)

func TestParseVMPayloadNutanix(t *testing.T) {
	raw := json.RawMessage(`{
		"uuid": "a1b2c3",
		"name": " app-01 ",
		"status": "ON",
		"cluster": "ntx-cluster-1",
		"host": "ntx-host-7",
		"os_type": "CentOS 7",
		"cpu": {"total_vcpus": 4, "num_sockets": 2, "cores_per_socket": 2},
		"ram": {"size_mib": 8192},
		"summary": {"total_disks": 1, "total_disk_size_gib": 100.456, "total_nics": 1},
		"nics": [{
			"mac_address": "AA:BB:CC:DD:EE:01",
			"subnet": "VLAN100",
			"is_connected": true,
			"ip_addresses": [{"ip": "10.0.0.5", "type": "LEARNED"}, {"ip": "10.0.0.5"}]
		}],
		"disks": [{"uuid": "disk-1", "label": "scsi.0:0", "size_gib": 100.456}]
	}`)

	ref, snap, err := parseVMPayload(PlatformNutanix, raw)
	if err != nil {
		t.Fatalf("parseVMPayload: %v", err)
	}

	if ref.Platform != PlatformNutanix || ref.NativeID != "a1b2c3" || ref.Kind != KindVM {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if ref.Name != "app-01" {
		t.Fatalf("name = %q, want trimmed app-01", ref.Name)
	}
	if snap.MemoryGB != 8 {
		t.Fatalf("memory = %v GB, want 8 (from 8192 MiB)", snap.MemoryGB)
	}
	if snap.TotalDiskGB != 100.46 {
		t.Fatalf("total disk = %v, want rounded 100.46", snap.TotalDiskGB)
	}
	if len(snap.NICs) != 1 {
		t.Fatalf("nics = %+v", snap.NICs)
	}
	nic := snap.NICs[0]
	if nic.MACAddress != "aa:bb:cc:dd:ee:01" {
		t.Fatalf("mac = %q, want lowercased", nic.MACAddress)
	}
	if nic.NetworkName != "VLAN100" {
		t.Fatalf("network = %q, want subnet value", nic.NetworkName)
	}
	if len(nic.IPs) != 1 {
		t.Fatalf("duplicate ip not collapsed: %+v", nic.IPs)
	}
	if len(snap.Disks) != 1 || snap.Disks[0].SizeGB != 100.46 {
		t.Fatalf("disks = %+v", snap.Disks)
	}
}

func TestParseVMPayloadVMwareNetworkKey(t *testing.T) {
	raw := json.RawMessage(`{
		"uuid": "vm-42",
		"name": "db-01",
		"status": "poweredOn",
		"cluster": "esx-cluster",
		"cpu": {"cores_per_socket": 4},
		"nics": [{"mac_address": "aa:bb:cc:dd:ee:02", "network": "network-18894"}]
	}`)

	_, snap, err := parseVMPayload(PlatformVMware, raw)
	if err != nil {
		t.Fatalf("parseVMPayload: %v", err)
	}
	if snap.NICs[0].NetworkName != "network-18894" {
		t.Fatalf("network = %q, want vmware network id", snap.NICs[0].NetworkName)
	}
	if snap.CoresPerSocket != 4 {
		t.Fatalf("cores per socket = %d", snap.CoresPerSocket)
	}
}

func TestParseVMPayloadRejectsUnknownFields(t *testing.T) {
	raw := json.RawMessage(`{"uuid": "x", "name": "y", "surprise": true}`)
	if _, _, err := parseVMPayload(PlatformNutanix, raw); err == nil {
		t.Fatal("expected strict decode to reject unknown field")
	}
}

func TestParseVMPayloadRequiresUUID(t *testing.T) {
	raw := json.RawMessage(`{"name": "orphan"}`)
	if _, _, err := parseVMPayload(PlatformNutanix, raw); err == nil {
		t.Fatal("expected missing uuid to be rejected")
	}
}

func TestParseHostPayload(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		raw := json.RawMessage(`{
			"uuid": "host-1",
			"hostname": "esx-01.corp",
			"cluster": "esx-cluster",
			"status": "connected",
			"hypervisor_ip": "10.10.0.1",
			"cpu_cores_physical": 32,
			"ram_gb": 512
		}`)

		ref, snap, err := parseHostPayload(PlatformVMware, raw)
		if err != nil {
			t.Fatalf("parseHostPayload: %v", err)
		}
		if ref.Kind != KindHost || ref.NativeID != "host-1" || ref.Name != "esx-01.corp" {
			t.Fatalf("unexpected ref: %+v", ref)
		}
		if snap.CPUCount != 32 || snap.MemoryGB != 512 || snap.HostIdentifier != "10.10.0.1" {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("hostname fallback identity", func(t *testing.T) {
		raw := json.RawMessage(`{"hostname": "ahv-03"}`)
		ref, _, err := parseHostPayload(PlatformNutanix, raw)
		if err != nil {
			t.Fatalf("parseHostPayload: %v", err)
		}
		if ref.NativeID != "ahv-03" || ref.Name != "ahv-03" {
			t.Fatalf("unexpected ref: %+v", ref)
		}
	})

	t.Run("no identity rejected", func(t *testing.T) {
		raw := json.RawMessage(`{"cluster": "x"}`)
		if _, _, err := parseHostPayload(PlatformNutanix, raw); err == nil {
			t.Fatal("expected host without uuid and hostname to be rejected")
		}
	})
}

func TestRetainKnownIPs(t *testing.T) {
	old := &FactSnapshot{NICs: []NICFact{
		{MACAddress: "aa:bb:cc:dd:ee:01", IPs: []IPAddress{{Address: "10.0.0.5"}, {Address: "169.254.9.9"}}},
	}}

	t.Run("link-local only report keeps known address", func(t *testing.T) {
		next := &FactSnapshot{NICs: []NICFact{
			{MACAddress: "aa:bb:cc:dd:ee:01", IPs: []IPAddress{{Address: "169.254.1.1"}}},
		}}
		retainKnownIPs(old, next)
		if len(next.NICs[0].IPs) != 1 || next.NICs[0].IPs[0].Address != "10.0.0.5" {
			t.Fatalf("ips = %+v, want retained 10.0.0.5", next.NICs[0].IPs)
		}
	})

	t.Run("empty report keeps known address", func(t *testing.T) {
		next := &FactSnapshot{NICs: []NICFact{
			{MACAddress: "aa:bb:cc:dd:ee:01"},
		}}
		retainKnownIPs(old, next)
		if len(next.NICs[0].IPs) != 1 || next.NICs[0].IPs[0].Address != "10.0.0.5" {
			t.Fatalf("ips = %+v, want retained 10.0.0.5", next.NICs[0].IPs)
		}
	})

	t.Run("routable report wins", func(t *testing.T) {
		next := &FactSnapshot{NICs: []NICFact{
			{MACAddress: "aa:bb:cc:dd:ee:01", IPs: []IPAddress{{Address: "10.0.0.77"}}},
		}}
		retainKnownIPs(old, next)
		if next.NICs[0].IPs[0].Address != "10.0.0.77" {
			t.Fatalf("ips = %+v, want fresh 10.0.0.77", next.NICs[0].IPs)
		}
	})

	t.Run("unknown mac untouched", func(t *testing.T) {
		next := &FactSnapshot{NICs: []NICFact{
			{MACAddress: "aa:bb:cc:dd:ee:99", IPs: []IPAddress{{Address: "169.254.1.1"}}},
		}}
		retainKnownIPs(old, next)
		if next.NICs[0].IPs[0].Address != "169.254.1.1" {
			t.Fatalf("ips = %+v, want untouched", next.NICs[0].IPs)
		}
	})
}
