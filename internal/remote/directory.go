package remote

import (
	"context"
	"errors"
	"net/http"

	"medigate/internal/verify"
	"medigate/pkg/domain"
	"medigate/pkg/platform/sentinel"
)

// DirectoryClient looks up doctor records in the clinic backend.
type DirectoryClient struct {
	*Client
}

func NewDirectoryClient(baseURL string, opts ...Option) (*DirectoryClient, error) {
	c, err := newClient("doctor-directory", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &DirectoryClient{Client: c}, nil
}

// FindDoctorByUserID returns the doctor record behind a user account. A 404 is
// not an error condition: it means the doctor has not registered yet, and is
// reported as sentinel.ErrNotFound for the resolver to interpret.
func (c *DirectoryClient) FindDoctorByUserID(ctx context.Context, userID domain.UserID) (verify.DoctorRecord, error) {
	var record verify.DoctorRecord
	err := c.doJSON(ctx, http.MethodGet, "/v1/doctors/by-user/"+userID.String(), nil, nil, &record)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			if se.status == http.StatusNotFound {
				return verify.DoctorRecord{}, sentinel.ErrNotFound
			}
			return verify.DoctorRecord{}, serverOrNetwork(se)
		}
		return verify.DoctorRecord{}, err
	}
	return record, nil
}
