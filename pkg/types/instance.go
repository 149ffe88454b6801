package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingStatus is returned when an instance description carries no power status
var ErrMissingStatus = errors.New("instance description has no status")

// InstanceRef identifies one compute instance
type InstanceRef struct {
	Name    string `json:"name"`
	Project string `json:"project"`
	Zone    string `json:"zone"`
}

// Validate reports the first required field that is empty
func (r InstanceRef) Validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("name is required")
	case r.Project == "":
		return fmt.Errorf("project is required")
	case r.Zone == "":
		return fmt.Errorf("zone is required")
	}
	return nil
}

// String renders the ref as project/zone/name
func (r InstanceRef) String() string {
	return r.Project + "/" + r.Zone + "/" + r.Name
}

// InstanceDescription is the subset of the Compute Engine instance resource we read.
// Every nested collection is optional on the wire.
type InstanceDescription struct {
	Name              string             `json:"name"`
	Status            string             `json:"status"`
	Zone              string             `json:"zone,omitempty"`
	MachineType       string             `json:"machineType,omitempty"`
	NetworkInterfaces []NetworkInterface `json:"networkInterfaces,omitempty"`
}

// NetworkInterface is one NIC of an instance
type NetworkInterface struct {
	Name          string         `json:"name,omitempty"`
	Network       string         `json:"network,omitempty"`
	NetworkIP     string         `json:"networkIP,omitempty"`
	AccessConfigs []AccessConfig `json:"accessConfigs,omitempty"`
}

// AccessConfig exposes a NIC externally. NatIP is absent when no external address is attached.
type AccessConfig struct {
	Name  string  `json:"name,omitempty"`
	Type  string  `json:"type,omitempty"`
	NatIP *string `json:"natIP,omitempty"`
}

// InstanceSnapshot is what callers need from a description
type InstanceSnapshot struct {
	Status     string `json:"status"`
	ExternalIP string `json:"external_ip,omitempty"`
}

// HasExternalIP reports whether the snapshot carries a public address
func (s InstanceSnapshot) HasExternalIP() bool {
	return s.ExternalIP != ""
}

// IPLookupResult classifies the outcome of an external address lookup
type IPLookupResult string

const (
	IPFound             IPLookupResult = "found"
	IPNoAccessConfig    IPLookupResult = "no_access_config"    // no interface or no access config
	IPNoExternalAddress IPLookupResult = "no_external_address" // access config present, natIP absent
)

// NotFoundText is the body returned when an instance has no external address
const NotFoundText = "Not found."

// ExternalIPLookup is the result of looking up the first external address
type ExternalIPLookup struct {
	Address string         `json:"address,omitempty"`
	Result  IPLookupResult `json:"result"`
}

// Found reports whether an address was found
func (l ExternalIPLookup) Found() bool {
	return l.Result == IPFound
}

// Text returns the address, or NotFoundText for either negative result
func (l ExternalIPLookup) Text() string {
	if l.Found() {
		return l.Address
	}
	return NotFoundText
}

// ParseInstanceDescription decodes a Compute Engine instance resource
func ParseInstanceDescription(data []byte) (*InstanceDescription, error) {
	var desc InstanceDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to decode instance description: %w", err)
	}
	if desc.Status == "" {
		return nil, ErrMissingStatus
	}
	return &desc, nil
}

// LookupExternalIP inspects the first access config of the first network interface
func (d *InstanceDescription) LookupExternalIP() ExternalIPLookup {
	if len(d.NetworkInterfaces) == 0 || len(d.NetworkInterfaces[0].AccessConfigs) == 0 {
		return ExternalIPLookup{Result: IPNoAccessConfig}
	}

	natIP := d.NetworkInterfaces[0].AccessConfigs[0].NatIP
	if natIP == nil || *natIP == "" {
		return ExternalIPLookup{Result: IPNoExternalAddress}
	}

	return ExternalIPLookup{Address: *natIP, Result: IPFound}
}

// Snapshot translates the description into power status and optional external address
func (d *InstanceDescription) Snapshot() InstanceSnapshot {
	return InstanceSnapshot{
		Status:     d.Status,
		ExternalIP: d.LookupExternalIP().Address,
	}
}

// Operation is the asynchronous operation the control plane returns for start/stop
type Operation struct {
	Name          string `json:"name,omitempty"`
	OperationType string `json:"operationType,omitempty"`
	Status        string `json:"status,omitempty"`
	TargetLink    string `json:"targetLink,omitempty"`
}
