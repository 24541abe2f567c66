package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies one of the supported hypervisor backends. Each
// platform has its own identity space for native object IDs.
type Platform string

const (
	PlatformNutanix Platform = "nutanix"
	PlatformVMware  Platform = "vmware"
)

// ResourceType selects what a sync run fetches from a platform.
type ResourceType string

const (
	ResourceVM            ResourceType = "vm"
	ResourceHost          ResourceType = "host"
	ResourceNetwork       ResourceType = "network"
	ResourcePublicNetwork ResourceType = "public_network"
	ResourceDNS           ResourceType = "dns"
)

// ObjectKind classifies an inventory object.
type ObjectKind string

const (
	KindVM      ObjectKind = "vm"
	KindHost    ObjectKind = "host"
	KindNetwork ObjectKind = "network"
)

// ChangeType is the closed enumeration of audited change categories.
type ChangeType string

const (
	ChangePowerState ChangeType = "POWER_STATE"
	ChangeCPU        ChangeType = "CPU"
	ChangeMemory     ChangeType = "MEMORY"
	ChangeDisk       ChangeType = "DISK"
	ChangeNIC        ChangeType = "NIC"
	ChangeIP         ChangeType = "IP"
	ChangeHost       ChangeType = "HOST"
	ChangeCluster    ChangeType = "CLUSTER"
)

// RunStatus is the sync run state machine. Terminal states are immutable.
type RunStatus string

const (
	RunPending RunStatus = "PENDING"
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// ObjectRef is the platform-stable identity of an inventory object plus the
// descriptive attributes refreshed on every sighting.
type ObjectRef struct {
	Platform Platform   `json:"platform"`
	NativeID string     `json:"native_id"`
	Kind     ObjectKind `json:"kind"`
	Name     string     `json:"name"`
}

// InventoryObject is one VM, host, or network tracked by the inventory.
// Objects are never deleted automatically; an object absent from a sync is
// flagged via MissingSince and revived on its next sighting.
type InventoryObject struct {
	ID            uuid.UUID  `json:"id"`
	Platform      Platform   `json:"platform"`
	NativeID      string     `json:"native_id"`
	Kind          ObjectKind `json:"kind"`
	Name          string     `json:"name"`
	FirstSeenAt   time.Time  `json:"first_seen_at"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	LastSyncRunID *uuid.UUID `json:"last_sync_run_id,omitempty"`
	MissingSince  *time.Time `json:"missing_since,omitempty"`
}

// IPAddress is one address reported for a NIC.
type IPAddress struct {
	Address string `json:"address"`
	Type    string `json:"type,omitempty"`
}

// NICFact is the platform-reported state of one virtual interface.
// NetworkName doubles as the join key for NIC-level overrides.
type NICFact struct {
	MACAddress  string      `json:"mac_address"`
	NetworkName string      `json:"network_name"`
	NICType     string      `json:"nic_type,omitempty"`
	Connected   bool        `json:"connected"`
	IPs         []IPAddress `json:"ips,omitempty"`
}

// DiskFact is the platform-reported state of one virtual disk.
type DiskFact struct {
	DiskUUID    string  `json:"disk_uuid,omitempty"`
	DiskKey     string  `json:"disk_key,omitempty"`
	Label       string  `json:"label,omitempty"`
	DeviceType  string  `json:"device_type,omitempty"`
	AdapterType string  `json:"adapter_type,omitempty"`
	SizeGB      float64 `json:"size_gb"`
}

// FactSnapshot is the latest platform-reported state for an object. It is
// replaced wholesale on each successful sync of the object, never merged.
type FactSnapshot struct {
	PowerState     string     `json:"power_state,omitempty"`
	ClusterName    string     `json:"cluster_name,omitempty"`
	HostIdentifier string     `json:"host_identifier,omitempty"`
	Hostname       string     `json:"hostname,omitempty"`
	OSType         string     `json:"os_type,omitempty"`
	OSFamily       string     `json:"os_family,omitempty"`
	CPUCount       int        `json:"cpu_count,omitempty"`
	NumSockets     int        `json:"num_sockets,omitempty"`
	CoresPerSocket int        `json:"cores_per_socket,omitempty"`
	MemoryGB       float64    `json:"memory_gb,omitempty"`
	TotalDiskGB    float64    `json:"total_disk_gb,omitempty"`
	Disks          []DiskFact `json:"disks,omitempty"`
	NICs           []NICFact  `json:"nics,omitempty"`
}

// Override is an operator-entered value that takes precedence over the
// synced fact for one field. Overrides survive re-syncs untouched.
type Override struct {
	ObjectID  uuid.UUID `json:"object_id"`
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// ChangeRecord is one immutable audit entry describing a field transition
// between two fact snapshots of the same object.
type ChangeRecord struct {
	ID         int64      `json:"id"`
	ObjectID   uuid.UUID  `json:"object_id"`
	SyncRunID  uuid.UUID  `json:"sync_run_id"`
	ChangeType ChangeType `json:"change_type"`
	FieldName  string     `json:"field_name"`
	OldValue   string     `json:"old_value,omitempty"`
	NewValue   string     `json:"new_value,omitempty"`
	ChangedAt  time.Time  `json:"changed_at"`
}

// ChangeView is a ChangeRecord joined with the owning object, as returned
// by audit queries.
type ChangeView struct {
	ChangeRecord
	Platform   Platform `json:"platform"`
	ObjectName string   `json:"object_name"`
}

// RunError records one object-level failure inside an otherwise healthy run.
type RunError struct {
	NativeID string `json:"native_id,omitempty"`
	Reason   string `json:"reason"`
}

// RunDetails carries diagnostic counters for a sync run. They are reported
// to operators and never consumed by downstream logic.
type RunDetails struct {
	ChangesDetected  int        `json:"changes_detected,omitempty"`
	Updated          int        `json:"updated,omitempty"`
	Missing          int        `json:"missing,omitempty"`
	MappingsReceived int        `json:"mappings_received,omitempty"`
	VMMatched        int        `json:"vm_matched,omitempty"`
	HostMatched      int        `json:"host_matched,omitempty"`
	Errors           []RunError `json:"errors,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// SyncRun is one execution attempt of fetching and reconciling a
// (platform, resource type) pair.
type SyncRun struct {
	ID           uuid.UUID    `json:"id"`
	Platform     Platform     `json:"platform"`
	ResourceType ResourceType `json:"resource_type"`
	Status       RunStatus    `json:"status"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
	ObjectsSeen  int          `json:"objects_seen"`
	Details      RunDetails   `json:"details"`
}

// EffectiveObject is the resolver output: the object with override
// precedence applied to its snapshot. Overridden lists the fields whose
// effective value came from an enabled override. Derived on demand, never
// persisted.
type EffectiveObject struct {
	InventoryObject
	FactSnapshot
	Overridden []string `json:"overridden,omitempty"`
	PrimaryIP  string   `json:"primary_ip,omitempty"`
}

// PublicNetworkMapping records SNAT/DNAT exposure for a matched object.
type PublicNetworkMapping struct {
	ObjectID     uuid.UUID `json:"object_id"`
	SNATIP       string    `json:"snat_ip,omitempty"`
	DNATIP       string    `json:"dnat_ip,omitempty"`
	ExposedPorts string    `json:"exposed_ports,omitempty"`
	SourceRegion string    `json:"source_region,omitempty"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DNSRecordMapping records internal/external DNS names for a matched object.
type DNSRecordMapping struct {
	ObjectID    uuid.UUID `json:"object_id"`
	InternalDNS string    `json:"internal_dns,omitempty"`
	ExternalDNS string    `json:"external_dns,omitempty"`
	SSLEnabled  bool      `json:"ssl_enabled"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidPlatform reports whether p is a supported platform.
func ValidPlatform(p Platform) bool {
	return p == PlatformNutanix || p == PlatformVMware
}

// ValidResourceType reports whether r is a supported resource type.
func ValidResourceType(r ResourceType) bool {
	switch r {
	case ResourceVM, ResourceHost, ResourceNetwork, ResourcePublicNetwork, ResourceDNS:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal run status.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}
