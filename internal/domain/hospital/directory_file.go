package hospital

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/medcenter/medcenter/internal/domain/imaging"
)

// FileDirectory is a read-only imaging.Directory loaded from YAML, for
// deployments that keep the hospital list outside the database:
//
//	archives:
//	  - hospital_id: 9b2f7c1e-3c1d-4b7a-9a53-0d1f6c1e2a10
//	    hospital_name: General Hospital
//	    host: pacs.general.local
//	    port: 8042
//	    username: orthanc
//	    password: ${ORTHANC_PASSWORD}
//
// Credentials are expanded from the environment.
type FileDirectory struct {
	archives []imaging.Archive
	byID     map[uuid.UUID]imaging.Archive
}

type fileArchive struct {
	HospitalID   uuid.UUID `yaml:"hospital_id"`
	HospitalName string    `yaml:"hospital_name"`
	Host         string    `yaml:"host"`
	Port         int       `yaml:"port"`
	Username     string    `yaml:"username"`
	Password     string    `yaml:"password"`
}

type fileDirectoryDoc struct {
	Archives []fileArchive `yaml:"archives"`
}

// LoadFileDirectory reads and validates a directory file.
func LoadFileDirectory(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archives file: %w", err)
	}
	return ParseFileDirectory(data)
}

func ParseFileDirectory(data []byte) (*FileDirectory, error) {
	var doc fileDirectoryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse archives file: %w", err)
	}

	d := &FileDirectory{
		archives: make([]imaging.Archive, 0, len(doc.Archives)),
		byID:     make(map[uuid.UUID]imaging.Archive, len(doc.Archives)),
	}
	for i, fa := range doc.Archives {
		if fa.HospitalID == uuid.Nil {
			return nil, fmt.Errorf("archives[%d]: hospital_id is required", i)
		}
		if _, dup := d.byID[fa.HospitalID]; dup {
			return nil, fmt.Errorf("archives[%d]: duplicate hospital_id %s", i, fa.HospitalID)
		}
		if fa.Host == "" || fa.Port <= 0 || fa.Port > 65535 {
			return nil, fmt.Errorf("archives[%d]: host and a valid port are required", i)
		}

		user, pass := os.ExpandEnv(fa.Username), os.ExpandEnv(fa.Password)
		srv := &DicomServer{HospitalID: fa.HospitalID, Host: fa.Host, Port: fa.Port, Username: &user, Password: &pass}
		arch := imaging.Archive{
			HospitalID:   fa.HospitalID,
			HospitalName: fa.HospitalName,
			Target:       srv.Target(fa.HospitalName),
		}
		d.archives = append(d.archives, arch)
		d.byID[arch.HospitalID] = arch
	}
	return d, nil
}

func (d *FileDirectory) Resolve(_ context.Context, hospitalID uuid.UUID) (imaging.Archive, bool, error) {
	a, ok := d.byID[hospitalID]
	return a, ok, nil
}

// Archives returns the archives in file order.
func (d *FileDirectory) Archives(context.Context) ([]imaging.Archive, error) {
	out := make([]imaging.Archive, len(d.archives))
	copy(out, d.archives)
	return out, nil
}
