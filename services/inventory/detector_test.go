package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testSnapshot() *FactSnapshot {
	return &FactSnapshot{
		PowerState:     "OFF",
		ClusterName:    "cluster-a",
		HostIdentifier: "host-1",
		CPUCount:       4,
		NumSockets:     2,
		CoresPerSocket: 2,
		MemoryGB:       8,
		TotalDiskGB:    100,
		Disks: []DiskFact{
			{DiskUUID: "disk-1", Label: "scsi.0:0", SizeGB: 100},
		},
		NICs: []NICFact{
			{MACAddress: "aa:bb:cc:dd:ee:01", NetworkName: "VLAN100", IPs: []IPAddress{{Address: "10.0.0.5"}}},
		},
	}
}

func TestDetectFirstSightingEmitsNothing(t *testing.T) {
	records := Detect(uuid.New(), nil, testSnapshot(), uuid.New(), time.Now())
	if len(records) != 0 {
		t.Fatalf("expected no records for first sighting, got %d", len(records))
	}
}

func TestDetectIdenticalSnapshotsEmitNothing(t *testing.T) {
	records := Detect(uuid.New(), testSnapshot(), testSnapshot(), uuid.New(), time.Now())
	if len(records) != 0 {
		t.Fatalf("expected no records for identical snapshots, got %d: %+v", len(records), records)
	}
}

func TestDetectPowerStateTransition(t *testing.T) {
	objectID := uuid.New()
	runID := uuid.New()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	old := testSnapshot()
	current := testSnapshot()
	current.PowerState = "ON"

	records := Detect(objectID, old, current, runID, at)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}

	rec := records[0]
	if rec.ChangeType != ChangePowerState {
		t.Fatalf("change type = %s, want %s", rec.ChangeType, ChangePowerState)
	}
	if rec.FieldName != "power_state" {
		t.Fatalf("field = %s, want power_state", rec.FieldName)
	}
	if rec.OldValue != "OFF" || rec.NewValue != "ON" {
		t.Fatalf("transition = %q -> %q, want OFF -> ON", rec.OldValue, rec.NewValue)
	}
	if rec.ObjectID != objectID || rec.SyncRunID != runID || !rec.ChangedAt.Equal(at) {
		t.Fatalf("record metadata mismatch: %+v", rec)
	}
}

func TestDetectEmptyToValueEmits(t *testing.T) {
	old := testSnapshot()
	old.ClusterName = ""
	current := testSnapshot()

	records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}
	if records[0].ChangeType != ChangeCluster || records[0].OldValue != "" || records[0].NewValue != "cluster-a" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestDetectScalarOrderIsRegistryOrder(t *testing.T) {
	old := testSnapshot()
	current := testSnapshot()
	current.PowerState = "ON"
	current.CPUCount = 8
	current.MemoryGB = 16
	current.ClusterName = "cluster-b"

	records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
	want := []ChangeType{ChangePowerState, ChangeCPU, ChangeMemory, ChangeCluster}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d: %+v", len(want), len(records), records)
	}
	for i, ct := range want {
		if records[i].ChangeType != ct {
			t.Fatalf("record %d change type = %s, want %s", i, records[i].ChangeType, ct)
		}
	}
}

func TestDetectDiskChanges(t *testing.T) {
	t.Run("added and removed", func(t *testing.T) {
		old := testSnapshot()
		current := testSnapshot()
		current.Disks = []DiskFact{
			{DiskUUID: "disk-2", Label: "scsi.0:1", SizeGB: 50},
		}

		records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
		}
		if records[0].FieldName != "disk_added" || records[0].NewValue != "scsi.0:1 (50 GB)" {
			t.Fatalf("unexpected add record: %+v", records[0])
		}
		if records[1].FieldName != "disk_removed" || records[1].OldValue != "scsi.0:0 (100 GB)" {
			t.Fatalf("unexpected remove record: %+v", records[1])
		}
	})

	t.Run("size change beyond epsilon", func(t *testing.T) {
		old := testSnapshot()
		current := testSnapshot()
		current.Disks = []DiskFact{
			{DiskUUID: "disk-1", Label: "scsi.0:0", SizeGB: 200},
		}

		records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
		if len(records) != 1 || records[0].FieldName != "disk_size_changed" {
			t.Fatalf("expected disk_size_changed, got %+v", records)
		}
	})

	t.Run("size jitter within epsilon ignored", func(t *testing.T) {
		old := testSnapshot()
		current := testSnapshot()
		current.Disks = []DiskFact{
			{DiskUUID: "disk-1", Label: "scsi.0:0", SizeGB: 100.005},
		}

		records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
		if len(records) != 0 {
			t.Fatalf("expected no records for sub-epsilon jitter, got %+v", records)
		}
	})

	t.Run("key falls back to label", func(t *testing.T) {
		old := testSnapshot()
		old.Disks = []DiskFact{{Label: "Hard disk 1", SizeGB: 40}}
		current := testSnapshot()
		current.Disks = []DiskFact{{Label: "Hard disk 1", SizeGB: 40}}

		records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
		if len(records) != 0 {
			t.Fatalf("label-keyed disks should match, got %+v", records)
		}
	})
}

func TestDetectNICChanges(t *testing.T) {
	old := testSnapshot()
	current := testSnapshot()
	current.NICs = append(cloneNICs(current.NICs), NICFact{
		MACAddress:  "aa:bb:cc:dd:ee:02",
		NetworkName: "VLAN200",
	})

	records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}
	if records[0].ChangeType != ChangeNIC || records[0].FieldName != "nic_added" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	if records[0].NewValue != "VLAN200 (aa:bb:cc:dd:ee:02)" {
		t.Fatalf("nic description = %q", records[0].NewValue)
	}
}

func TestDetectIPChanges(t *testing.T) {
	t.Run("added and removed", func(t *testing.T) {
		old := testSnapshot()
		current := testSnapshot()
		current.NICs = []NICFact{
			{MACAddress: "aa:bb:cc:dd:ee:01", NetworkName: "VLAN100", IPs: []IPAddress{{Address: "10.0.0.6"}}},
		}

		records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
		}
		if records[0].FieldName != "ip_added" || records[0].NewValue != "10.0.0.6" {
			t.Fatalf("unexpected add record: %+v", records[0])
		}
		if records[1].FieldName != "ip_removed" || records[1].OldValue != "10.0.0.5" {
			t.Fatalf("unexpected remove record: %+v", records[1])
		}
	})

	t.Run("address moving between NICs is not a change", func(t *testing.T) {
		old := testSnapshot()
		old.NICs = []NICFact{
			{MACAddress: "aa:bb:cc:dd:ee:01", IPs: []IPAddress{{Address: "10.0.0.5"}}},
			{MACAddress: "aa:bb:cc:dd:ee:02"},
		}
		current := testSnapshot()
		current.NICs = []NICFact{
			{MACAddress: "aa:bb:cc:dd:ee:01"},
			{MACAddress: "aa:bb:cc:dd:ee:02", IPs: []IPAddress{{Address: "10.0.0.5"}}},
		}

		records := Detect(uuid.New(), old, current, uuid.New(), time.Now())
		if len(records) != 0 {
			t.Fatalf("expected no records, got %+v", records)
		}
	})
}
