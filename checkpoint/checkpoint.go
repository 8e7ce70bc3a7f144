// Package checkpoint persists and restores per-replica flow states. Each
// checkpoint is a YAML manifest describing the stored fields next to a flat
// binary payload holding the field data in manifest order.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"

	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/types"
)

// fieldEntry records one field's identity and shape in the manifest.
type fieldEntry struct {
	Name string `yaml:"Name"`
	Nx   int    `yaml:"Nx"`
	Ny   int    `yaml:"Ny"`
	Nz   int    `yaml:"Nz"`
}

// manifest is the YAML sidecar of a checkpoint payload.
type manifest struct {
	Prefix  string       `yaml:"Prefix"`
	StepID  int          `yaml:"StepID"`
	Replica int          `yaml:"Replica"`
	Fields  []fieldEntry `yaml:"Fields"`
}

// Store reads and writes checkpoints below a fixed directory, keyed by
// (prefix, step id, replica id).
type Store struct {
	dir    string
	prefix string
	log    *logrus.Entry
}

func NewStore(dir, prefix string) *Store {
	return &Store{
		dir:    dir,
		prefix: prefix,
		log: logrus.WithFields(logrus.Fields{
			"component": "checkpoint",
			"dir":       dir,
		}),
	}
}

func (s *Store) basename(stepID, replicaID int) string {
	return fmt.Sprintf("%s-%08d-r%04d", s.prefix, stepID, replicaID)
}

func (s *Store) manifestPath(stepID, replicaID int) string {
	return filepath.Join(s.dir, s.basename(stepID, replicaID)+".yaml")
}

func (s *Store) payloadPath(stepID, replicaID int) string {
	return filepath.Join(s.dir, s.basename(stepID, replicaID)+".bin")
}

// WriteState persists the state of one replica at one step. Existing
// checkpoints under the same key are overwritten.
func (s *Store) WriteState(stepID, replicaID int, states *types.State) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	m := manifest{
		Prefix:  s.prefix,
		StepID:  stepID,
		Replica: replicaID,
	}

	payload, err := os.Create(s.payloadPath(stepID, replicaID))
	if err != nil {
		return err
	}
	defer payload.Close()

	err = states.Range(func(name string, f *field.Field) error {
		m.Fields = append(m.Fields, fieldEntry{
			Name: name, Nx: f.Nx, Ny: f.Ny, Nz: f.Nz,
		})
		return binary.Write(payload, binary.LittleEndian, f.Data)
	})
	if err != nil {
		return err
	}
	if err := payload.Close(); err != nil {
		return err
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.manifestPath(stepID, replicaID), data, 0o644); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"step":    stepID,
		"replica": replicaID,
		"fields":  len(m.Fields),
	}).Info("wrote checkpoint")
	return nil
}

// ReadState restores a previously written state. The manifest key must
// match the requested step and replica.
func (s *Store) ReadState(stepID, replicaID int) (*types.State, error) {
	data, err := os.ReadFile(s.manifestPath(stepID, replicaID))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.StepID != stepID || m.Replica != replicaID {
		return nil, fmt.Errorf("checkpoint manifest keyed (%d, %d) does not match "+
			"requested (%d, %d)", m.StepID, m.Replica, stepID, replicaID)
	}

	payload, err := os.Open(s.payloadPath(stepID, replicaID))
	if err != nil {
		return nil, err
	}
	defer payload.Close()

	states := types.NewState()
	for _, entry := range m.Fields {
		f := field.NewField(entry.Nx, entry.Ny, entry.Nz)
		if err := binary.Read(payload, binary.LittleEndian, f.Data); err != nil {
			return nil, fmt.Errorf("reading field %q: %v", entry.Name, err)
		}
		if err := states.Set(entry.Name, f); err != nil {
			return nil, err
		}
	}
	return states, nil
}
