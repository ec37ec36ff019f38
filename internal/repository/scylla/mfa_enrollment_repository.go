package scylla

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/mfa"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/util"
)

// MFAEnrollmentRepository stores admin MFA enrollments in Scylla, partitioned
// by user bucket so hot partitions stay bounded.
type MFAEnrollmentRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
}

func NewMFAEnrollmentRepository(client *ScyllaClient, buckets *bucketing.BucketingManager, logger *zap.Logger) *MFAEnrollmentRepository {
	return &MFAEnrollmentRepository{
		client:  client,
		buckets: buckets,
		logger:  logger,
	}
}

func (r *MFAEnrollmentRepository) Get(ctx context.Context, userID string) (*models.MFAEnrollment, error) {
	bucket := r.buckets.GetUserBucket(userID)

	var enrollment models.MFAEnrollment
	var userBucket int
	err := r.client.Prepared.GetEnrollment.
		WithContext(ctx).
		Bind(bucket, userID).
		Scan(&userBucket, &enrollment.UserID, &enrollment.SecretEnc,
			&enrollment.BackupCodes, &enrollment.Enabled,
			&enrollment.CreatedAt, &enrollment.UpdatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, mfa.ErrEnrollmentNotFound
		}
		util.Error("Failed to get MFA enrollment",
			util.String("user_id", userID),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to get mfa enrollment: %w", err)
	}
	return &enrollment, nil
}

func (r *MFAEnrollmentRepository) Save(ctx context.Context, enrollment models.MFAEnrollment) error {
	bucket := r.buckets.GetUserBucket(enrollment.UserID)

	err := r.client.Prepared.UpsertEnrollment.
		WithContext(ctx).
		Bind(bucket, enrollment.UserID, enrollment.SecretEnc,
			enrollment.BackupCodes, enrollment.Enabled,
			enrollment.CreatedAt, enrollment.UpdatedAt).
		Exec()
	if err != nil {
		util.Error("Failed to save MFA enrollment",
			util.String("user_id", enrollment.UserID),
			util.ErrorField(err))
		return fmt.Errorf("failed to save mfa enrollment: %w", err)
	}

	util.Debug("MFA enrollment saved",
		util.String("user_id", enrollment.UserID),
		util.Bool("enabled", enrollment.Enabled))
	return nil
}

func (r *MFAEnrollmentRepository) Delete(ctx context.Context, userID string) error {
	bucket := r.buckets.GetUserBucket(userID)

	err := r.client.Prepared.DeleteEnrollment.
		WithContext(ctx).
		Bind(bucket, userID).
		Exec()
	if err != nil {
		util.Error("Failed to delete MFA enrollment",
			util.String("user_id", userID),
			util.ErrorField(err))
		return fmt.Errorf("failed to delete mfa enrollment: %w", err)
	}
	return nil
}
