package vault

import (
	"context"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// IsAdmin reports whether caller is the vault administrator.
func (v *Vault) IsAdmin(ctx context.Context, caller models.Address) (bool, error) {
	var admin bool
	err := v.view(ctx, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		admin = isAdmin(st, caller)
		return nil
	})
	return admin, err
}

func isAdmin(st *models.State, caller models.Address) bool {
	return caller != "" && caller == st.V1.Admin
}

func requireAdmin(st *models.State, caller models.Address) error {
	if !isAdmin(st, caller) {
		return errors.Wrapf(errors.ErrUnauthorized, "%q is not the admin", caller)
	}
	return nil
}

func validateBasisPoints(bp uint32) error {
	if bp > models.MaxBasisPoints {
		return errors.Wrapf(ErrInvalidBasisPoints, "%d exceeds %d", bp, models.MaxBasisPoints)
	}
	return nil
}
