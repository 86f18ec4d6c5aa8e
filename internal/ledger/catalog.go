package ledger

import (
	"context"
	"fmt"
	"strings"

	"course-payments/internal/domain/catalog"
	"course-payments/internal/domain/enrollments"
	"course-payments/internal/domain/users"

	"gorm.io/gorm/clause"
)

func (s *Store) GetProduct(ctx context.Context, id uint) (*catalog.Product, error) {
	var p catalog.Product
	if err := s.conn(ctx).Preload("Prices").First(&p, id).Error; err != nil {
		return nil, notFound(err, "product")
	}
	return &p, nil
}

func (s *Store) ProductPrice(ctx context.Context, productID uint, currency string) (*catalog.ProductPrice, error) {
	var pp catalog.ProductPrice
	err := s.conn(ctx).
		Where("product_id = ? AND currency = ?", productID, catalog.NormalizeCurrency(currency)).
		First(&pp).Error
	if err != nil {
		return nil, notFound(err, "product price")
	}
	return &pp, nil
}

func (s *Store) CourseByID(ctx context.Context, id uint) (*catalog.Course, error) {
	var c catalog.Course
	if err := s.conn(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, "course")
	}
	return &c, nil
}

// CoursesByTitle returns at most two courses whose normalized title equals
// the given one; two results are enough to detect ambiguity.
func (s *Store) CoursesByTitle(ctx context.Context, title string) ([]catalog.Course, error) {
	want := catalog.NormalizeTitle(title)
	if want == "" {
		return nil, nil
	}

	// Stored titles may carry extra whitespace; narrow with LIKE and compare
	// the normalized forms here.
	pattern := "%" + strings.ReplaceAll(want, " ", "%") + "%"
	var candidates []catalog.Course
	if err := s.conn(ctx).Where("LOWER(title) LIKE ?", pattern).Order("id").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("find courses by title: %w", err)
	}

	var out []catalog.Course
	for _, c := range candidates {
		if catalog.NormalizeTitle(c.Title) == want {
			out = append(out, c)
			if len(out) == 2 {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*users.User, error) {
	var u users.User
	if err := s.conn(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// LockUser serializes concurrent checkouts of one buyer.
func (s *Store) LockUser(ctx context.Context, id uint) (*users.User, error) {
	var u users.User
	if err := forUpdate(s.conn(ctx)).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// GrantEnrollment inserts the enrollment unless the (user, course) pair is
// already enrolled. It reports whether a row was created.
func (s *Store) GrantEnrollment(ctx context.Context, e *enrollments.Enrollment) (bool, error) {
	res := s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return false, fmt.Errorf("grant enrollment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) HasEnrollment(ctx context.Context, userID, courseID uint) (bool, error) {
	var n int64
	err := s.conn(ctx).
		Model(&enrollments.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count enrollments: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListEnrollmentsByUser(ctx context.Context, userID uint) ([]enrollments.Enrollment, error) {
	var out []enrollments.Enrollment
	if err := s.conn(ctx).Where("user_id = ?", userID).Order("granted_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return out, nil
}
