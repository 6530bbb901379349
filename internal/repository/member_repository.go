package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gymflow-api/internal/models"
)

// MemberRepository reads the member directory maintained by the identity
// system. This service never writes to it.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// FindByID returns a member by its ID.
func (r *MemberRepository) FindByID(ctx context.Context, id string) (*models.Member, error) {
	const query = `SELECT id, full_name, email, active, created_at FROM members WHERE id = $1`
	var member models.Member
	if err := r.db.GetContext(ctx, &member, query, id); err != nil {
		return nil, err
	}
	return &member, nil
}
