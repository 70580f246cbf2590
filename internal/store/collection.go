package store

import (
	"fmt"

	"github.com/rmed/simpleice/internal/domain"
)

// Collection is the ordered set of ICE mails held by a Store. IDs and names
// are unique within a collection.
type Collection []domain.IceMail

// FindByName returns the mail with the given name, or nil.
func (c Collection) FindByName(name string) *domain.IceMail {
	for i := range c {
		if c[i].Name == name {
			return &c[i]
		}
	}
	return nil
}

// FindByID returns the mail with the given ID, or nil.
func (c Collection) FindByID(id string) *domain.IceMail {
	for i := range c {
		if c[i].ID == id {
			return &c[i]
		}
	}
	return nil
}

// Get is FindByName that reports a miss as domain.ErrNotFound.
func (c Collection) Get(name string) (*domain.IceMail, error) {
	m := c.FindByName(name)
	if m == nil {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrNotFound)
	}
	return m, nil
}

// Insert appends m, failing if its name or ID is already taken.
func (c *Collection) Insert(m domain.IceMail) error {
	if c.FindByName(m.Name) != nil {
		return fmt.Errorf("%q: %w", m.Name, domain.ErrDuplicateName)
	}
	if m.ID != "" && c.FindByID(m.ID) != nil {
		return fmt.Errorf("duplicate id %s", m.ID)
	}
	*c = append(*c, m)
	return nil
}

// Rename changes the name of an existing mail, keeping names unique.
func (c Collection) Rename(name, newName string) error {
	m, err := c.Get(name)
	if err != nil {
		return err
	}
	if newName == name {
		return nil
	}
	if newName == "" {
		return domain.ErrInvalidName
	}
	if c.FindByName(newName) != nil {
		return fmt.Errorf("%q: %w", newName, domain.ErrDuplicateName)
	}
	m.Name = newName
	return nil
}

// Remove deletes the mail with the given name and returns it.
func (c *Collection) Remove(name string) (domain.IceMail, error) {
	for i := range *c {
		if (*c)[i].Name == name {
			removed := (*c)[i]
			*c = append((*c)[:i], (*c)[i+1:]...)
			return removed, nil
		}
	}
	return domain.IceMail{}, fmt.Errorf("%q: %w", name, domain.ErrNotFound)
}
