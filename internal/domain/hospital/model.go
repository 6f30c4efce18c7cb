package hospital

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/platform/orthanc"
)

type Hospital struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      *string   `db:"code" json:"code,omitempty"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DicomServer is the connection record of a hospital's imaging archive.
// Host is free-form: "pacs.local", "https://pacs.local" and
// "http://pacs.local:8042" are all accepted.
type DicomServer struct {
	ID         uuid.UUID `db:"id" json:"id"`
	HospitalID uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Name       string    `db:"name" json:"name"`
	Host       string    `db:"host" json:"host"`
	Port       int       `db:"port" json:"port"`
	Username   *string   `db:"username" json:"username,omitempty"`
	Password   *string   `db:"password" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ArchiveURL builds the archive base URL. A host without a scheme gets
// http://, and the port is appended unless the host already carries one.
func (s *DicomServer) ArchiveURL() string {
	host := strings.TrimRight(strings.TrimSpace(s.Host), "/")
	port := strconv.Itoa(s.Port)

	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		return "http://" + host + ":" + port
	}

	u, err := url.Parse(host)
	if err != nil {
		if strings.Contains(host, ":"+port) {
			return host
		}
		return host + ":" + port
	}
	if u.Port() != "" {
		return host
	}
	u.Host = u.Host + ":" + port
	return u.String()
}

// Target returns the client target for this server.
func (s *DicomServer) Target(name string) orthanc.Target {
	t := orthanc.Target{Name: name, BaseURL: s.ArchiveURL()}
	if s.Username != nil {
		t.Username = *s.Username
	}
	if s.Password != nil {
		t.Password = *s.Password
	}
	return t
}

// DicomServerInput is the write model for a DICOM server. It is separate
// from DicomServer so the password can be supplied but is never echoed.
type DicomServerInput struct {
	Name     string  `json:"name"`
	Host     string  `json:"host"`
	Port     int     `json:"port"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (in DicomServerInput) toServer(hospitalID uuid.UUID) *DicomServer {
	return &DicomServer{
		HospitalID: hospitalID,
		Name:       strings.TrimSpace(in.Name),
		Host:       strings.TrimSpace(in.Host),
		Port:       in.Port,
		Username:   in.Username,
		Password:   in.Password,
	}
}
