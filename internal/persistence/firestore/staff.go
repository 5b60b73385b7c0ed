package firestore

import (
	"context"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

type employeeDoc struct {
	Email            string    `firestore:"email"`
	FirstName        string    `firestore:"first_name"`
	LastName         string    `firestore:"last_name"`
	Nickname         string    `firestore:"nickname"`
	Phone            string    `firestore:"phone"`
	EmergencyContact string    `firestore:"emergency_contact"`
	Active           bool      `firestore:"active"`
	Roles            []string  `firestore:"roles"`
	CreatedAt        time.Time `firestore:"created_at"`
	UpdatedAt        time.Time `firestore:"updated_at"`
}

type claimDoc struct {
	OwnerID string `firestore:"owner_id"`
}

func toEmployeeDoc(e persistence.Employee) employeeDoc {
	return employeeDoc{
		Email:            strings.ToLower(strings.TrimSpace(e.Email)),
		FirstName:        e.FirstName,
		LastName:         e.LastName,
		Nickname:         e.Nickname,
		Phone:            e.Phone,
		EmergencyContact: e.EmergencyContact,
		Active:           e.Active,
		Roles:            e.Roles,
		CreatedAt:        e.CreatedAt.UTC(),
		UpdatedAt:        e.UpdatedAt.UTC(),
	}
}

func fromEmployeeDoc(id string, d employeeDoc) persistence.Employee {
	return persistence.Employee{
		ID:               id,
		Email:            d.Email,
		FirstName:        d.FirstName,
		LastName:         d.LastName,
		Nickname:         d.Nickname,
		Phone:            d.Phone,
		EmergencyContact: d.EmergencyContact,
		Active:           d.Active,
		Roles:            d.Roles,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func decodeEmployee(snap *firestore.DocumentSnapshot) (persistence.Employee, error) {
	d, err := decodeAs[employeeDoc](snap)
	if err != nil {
		return persistence.Employee{}, err
	}
	return fromEmployeeDoc(snap.Ref.ID, d), nil
}

// CreateEmployee stores a new employee and claims its email.
func (s *Store) CreateEmployee(ctx context.Context, employee persistence.Employee) error {
	doc := toEmployeeDoc(employee)
	if employee.ID == "" || doc.Email == "" {
		return persistence.ErrConstraintViolation
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.col(emailClaimsCollection).Doc(claimKey(doc.Email)), claimDoc{OwnerID: employee.ID}); err != nil {
			return err
		}
		return tx.Create(s.col(employeesCollection).Doc(employee.ID), doc)
	})
	return mapError(err)
}

// UpdateEmployee overwrites an employee, moving the email claim when the
// address changes.
func (s *Store) UpdateEmployee(ctx context.Context, employee persistence.Employee) error {
	if employee.ID == "" {
		return persistence.ErrConstraintViolation
	}
	doc := toEmployeeDoc(employee)
	ref := s.col(employeesCollection).Doc(employee.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decodeAs[employeeDoc](snap)
		if err != nil {
			return err
		}
		doc.CreatedAt = current.CreatedAt
		if current.Email != doc.Email {
			if err := tx.Create(s.col(emailClaimsCollection).Doc(claimKey(doc.Email)), claimDoc{OwnerID: employee.ID}); err != nil {
				return err
			}
			if err := tx.Delete(s.col(emailClaimsCollection).Doc(claimKey(current.Email))); err != nil {
				return err
			}
		}
		return tx.Set(ref, doc)
	})
	return mapError(err)
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id string) (persistence.Employee, error) {
	if id == "" {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	snap, err := s.col(employeesCollection).Doc(id).Get(ctx)
	if err != nil {
		return persistence.Employee{}, mapError(err)
	}
	return decodeEmployee(snap)
}

// GetEmployeeByEmail retrieves an employee by email, ignoring case.
func (s *Store) GetEmployeeByEmail(ctx context.Context, email string) (persistence.Employee, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	snap, err := s.col(emailClaimsCollection).Doc(claimKey(email)).Get(ctx)
	if err != nil {
		return persistence.Employee{}, mapError(err)
	}
	claim, err := decodeAs[claimDoc](snap)
	if err != nil {
		return persistence.Employee{}, err
	}
	return s.GetEmployee(ctx, claim.OwnerID)
}

// ListEmployees returns employees ordered by last name, first name and id.
func (s *Store) ListEmployees(ctx context.Context, filter persistence.EmployeeFilter) ([]persistence.Employee, error) {
	q := s.col(employeesCollection).Query
	if filter.Active != nil {
		q = q.Where("active", "==", *filter.Active)
	}
	employees, err := collect(q.Documents(ctx), decodeEmployee)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(employees, func(a, b persistence.Employee) int {
		if c := strings.Compare(strings.ToLower(a.LastName), strings.ToLower(b.LastName)); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.FirstName), strings.ToLower(b.FirstName)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return employees, nil
}

// DeleteEmployee removes an employee with its email claim, credential,
// sessions, invites and streaming grant.
func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	ref := s.col(employeesCollection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decodeAs[employeeDoc](snap)
		if err != nil {
			return err
		}
		var dependents []*firestore.DocumentRef
		for _, q := range []firestore.Query{
			s.col(sessionsCollection).Where("employee_id", "==", id),
			s.col(invitesCollection).Where("employee_id", "==", id),
		} {
			snaps, err := tx.Documents(q).GetAll()
			if err != nil {
				return err
			}
			for _, snap := range snaps {
				dependents = append(dependents, snap.Ref)
			}
		}

		dependents = append(dependents,
			s.col(emailClaimsCollection).Doc(claimKey(current.Email)),
			s.col(credentialsCollection).Doc(id),
			s.col(streamingTokenCollection).Doc(id),
		)
		for _, dep := range dependents {
			if err := tx.Delete(dep); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
	return mapError(err)
}

type credentialDoc struct {
	PasswordHash string    `firestore:"password_hash"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

// SetCredential inserts or replaces the password hash of an employee.
func (s *Store) SetCredential(ctx context.Context, credential persistence.Credential) error {
	if credential.EmployeeID == "" || credential.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.col(credentialsCollection).Doc(credential.EmployeeID).Set(ctx, credentialDoc{
		PasswordHash: credential.PasswordHash,
		UpdatedAt:    credential.UpdatedAt.UTC(),
	})
	return mapError(err)
}

// GetCredential returns the password hash of an employee.
func (s *Store) GetCredential(ctx context.Context, employeeID string) (persistence.Credential, error) {
	if employeeID == "" {
		return persistence.Credential{}, persistence.ErrNotFound
	}
	snap, err := s.col(credentialsCollection).Doc(employeeID).Get(ctx)
	if err != nil {
		return persistence.Credential{}, mapError(err)
	}
	d, err := decodeAs[credentialDoc](snap)
	if err != nil {
		return persistence.Credential{}, err
	}
	return persistence.Credential{EmployeeID: employeeID, PasswordHash: d.PasswordHash, UpdatedAt: d.UpdatedAt}, nil
}

type locationDoc struct {
	Name             string    `firestore:"name"`
	Address          string    `firestore:"address"`
	ContactName      string    `firestore:"contact_name"`
	ContactEmail     string    `firestore:"contact_email"`
	ContactPhone     string    `firestore:"contact_phone"`
	WeeklyNights     []string  `firestore:"weekly_nights"`
	DefaultStartTime string    `firestore:"default_start_time"`
	DefaultEndTime   string    `firestore:"default_end_time"`
	Notes            string    `firestore:"notes"`
	Active           bool      `firestore:"active"`
	CreatedAt        time.Time `firestore:"created_at"`
	UpdatedAt        time.Time `firestore:"updated_at"`
}

func toLocationDoc(l persistence.Location) locationDoc {
	return locationDoc{
		Name:             strings.TrimSpace(l.Name),
		Address:          l.Address,
		ContactName:      l.ContactName,
		ContactEmail:     l.ContactEmail,
		ContactPhone:     l.ContactPhone,
		WeeklyNights:     l.WeeklyNights,
		DefaultStartTime: l.DefaultStartTime,
		DefaultEndTime:   l.DefaultEndTime,
		Notes:            l.Notes,
		Active:           l.Active,
		CreatedAt:        l.CreatedAt.UTC(),
		UpdatedAt:        l.UpdatedAt.UTC(),
	}
}

func decodeLocation(snap *firestore.DocumentSnapshot) (persistence.Location, error) {
	d, err := decodeAs[locationDoc](snap)
	if err != nil {
		return persistence.Location{}, err
	}
	return persistence.Location{
		ID:               snap.Ref.ID,
		Name:             d.Name,
		Address:          d.Address,
		ContactName:      d.ContactName,
		ContactEmail:     d.ContactEmail,
		ContactPhone:     d.ContactPhone,
		WeeklyNights:     d.WeeklyNights,
		DefaultStartTime: d.DefaultStartTime,
		DefaultEndTime:   d.DefaultEndTime,
		Notes:            d.Notes,
		Active:           d.Active,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

// CreateLocation stores a new venue and claims its name.
func (s *Store) CreateLocation(ctx context.Context, location persistence.Location) error {
	doc := toLocationDoc(location)
	if location.ID == "" || doc.Name == "" {
		return persistence.ErrConstraintViolation
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.col(locationNamesCollection).Doc(claimKey(doc.Name)), claimDoc{OwnerID: location.ID}); err != nil {
			return err
		}
		return tx.Create(s.col(locationsCollection).Doc(location.ID), doc)
	})
	return mapError(err)
}

// UpdateLocation overwrites a venue, moving the name claim when it changes.
func (s *Store) UpdateLocation(ctx context.Context, location persistence.Location) error {
	if location.ID == "" {
		return persistence.ErrConstraintViolation
	}
	doc := toLocationDoc(location)
	ref := s.col(locationsCollection).Doc(location.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decodeAs[locationDoc](snap)
		if err != nil {
			return err
		}
		doc.CreatedAt = current.CreatedAt
		if claimKey(current.Name) != claimKey(doc.Name) {
			if err := tx.Create(s.col(locationNamesCollection).Doc(claimKey(doc.Name)), claimDoc{OwnerID: location.ID}); err != nil {
				return err
			}
			if err := tx.Delete(s.col(locationNamesCollection).Doc(claimKey(current.Name))); err != nil {
				return err
			}
		}
		return tx.Set(ref, doc)
	})
	return mapError(err)
}

// GetLocation retrieves a venue by ID.
func (s *Store) GetLocation(ctx context.Context, id string) (persistence.Location, error) {
	if id == "" {
		return persistence.Location{}, persistence.ErrNotFound
	}
	snap, err := s.col(locationsCollection).Doc(id).Get(ctx)
	if err != nil {
		return persistence.Location{}, mapError(err)
	}
	return decodeLocation(snap)
}

// GetLocationByName retrieves a venue by name, ignoring case.
func (s *Store) GetLocationByName(ctx context.Context, name string) (persistence.Location, error) {
	if strings.TrimSpace(name) == "" {
		return persistence.Location{}, persistence.ErrNotFound
	}
	snap, err := s.col(locationNamesCollection).Doc(claimKey(name)).Get(ctx)
	if err != nil {
		return persistence.Location{}, mapError(err)
	}
	claim, err := decodeAs[claimDoc](snap)
	if err != nil {
		return persistence.Location{}, err
	}
	return s.GetLocation(ctx, claim.OwnerID)
}

// ListLocations returns venues ordered by name.
func (s *Store) ListLocations(ctx context.Context, filter persistence.LocationFilter) ([]persistence.Location, error) {
	q := s.col(locationsCollection).Query
	if filter.Active != nil {
		q = q.Where("active", "==", *filter.Active)
	}
	locations, err := collect(q.Documents(ctx), decodeLocation)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(locations, func(a, b persistence.Location) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return locations, nil
}

// DeleteLocation removes a venue and releases its name.
func (s *Store) DeleteLocation(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	ref := s.col(locationsCollection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decodeAs[locationDoc](snap)
		if err != nil {
			return err
		}
		if err := tx.Delete(s.col(locationNamesCollection).Doc(claimKey(current.Name))); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	return mapError(err)
}

type inviteDoc struct {
	EmployeeID string     `firestore:"employee_id"`
	Email      string     `firestore:"email"`
	Roles      []string   `firestore:"roles"`
	InvitedBy  string     `firestore:"invited_by"`
	ExpiresAt  time.Time  `firestore:"expires_at"`
	AcceptedAt *time.Time `firestore:"accepted_at"`
	CreatedAt  time.Time  `firestore:"created_at"`
}

func toInviteDoc(i persistence.Invite) inviteDoc {
	return inviteDoc{
		EmployeeID: i.EmployeeID,
		Email:      strings.ToLower(strings.TrimSpace(i.Email)),
		Roles:      i.Roles,
		InvitedBy:  i.InvitedBy,
		ExpiresAt:  i.ExpiresAt.UTC(),
		AcceptedAt: utcPtr(i.AcceptedAt),
		CreatedAt:  i.CreatedAt.UTC(),
	}
}

// CreateInvite stores a new invitation.
func (s *Store) CreateInvite(ctx context.Context, invite persistence.Invite) error {
	if invite.ID == "" || invite.EmployeeID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.col(invitesCollection).Doc(invite.ID).Create(ctx, toInviteDoc(invite))
	return mapError(err)
}

// GetInvite retrieves an invitation by ID.
func (s *Store) GetInvite(ctx context.Context, id string) (persistence.Invite, error) {
	if id == "" {
		return persistence.Invite{}, persistence.ErrNotFound
	}
	snap, err := s.col(invitesCollection).Doc(id).Get(ctx)
	if err != nil {
		return persistence.Invite{}, mapError(err)
	}
	d, err := decodeAs[inviteDoc](snap)
	if err != nil {
		return persistence.Invite{}, err
	}
	return persistence.Invite{
		ID:         id,
		EmployeeID: d.EmployeeID,
		Email:      d.Email,
		Roles:      d.Roles,
		InvitedBy:  d.InvitedBy,
		ExpiresAt:  d.ExpiresAt,
		AcceptedAt: d.AcceptedAt,
		CreatedAt:  d.CreatedAt,
	}, nil
}

// UpdateInvite records acceptance or a new expiry.
func (s *Store) UpdateInvite(ctx context.Context, invite persistence.Invite) error {
	if invite.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.col(invitesCollection).Doc(invite.ID).Update(ctx, []firestore.Update{
		{Path: "expires_at", Value: invite.ExpiresAt.UTC()},
		{Path: "accepted_at", Value: utcPtr(invite.AcceptedAt)},
	})
	return mapError(err)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
