package vault

import (
	"context"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
)

// migration introduces the fields of the version it is registered for. It
// must only add state and never rewrite what earlier versions stored.
type migration func(o *operation, st *models.State) error

var migrations = map[models.Version]migration{
	models.V2: migrateV1ToV2,
	models.V3: migrateV2ToV3,
}

// migrateV1ToV2 adds the yield fields. Existing balances start accruing at
// upgrade time.
func migrateV1ToV2(o *operation, st *models.State) error {
	st.V2 = &models.ConfigV2{}
	accounts, err := o.tx.Accounts(o.ctx)
	if err != nil {
		return errors.Wrap(err, "list accounts")
	}
	for _, acc := range accounts {
		if err := o.resetCheckpoint(acc.Owner); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2ToV3(_ *operation, st *models.State) error {
	st.V3 = &models.ConfigV3{}
	return nil
}

// Upgrade switches the vault to target, which must be the version right after
// the active one. The active version must have been initialized first, so an
// upgrade can never leave the vault with two uninitialized versions. Admin
// only.
func (v *Vault) Upgrade(ctx context.Context, caller models.Address, target models.Version) error {
	return v.update(ctx, "upgrade", caller, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		if err := requireAdmin(st, caller); err != nil {
			return err
		}
		if target != st.Version+1 || target > models.LatestVersion {
			return errors.Wrapf(ErrVersion, "cannot upgrade from version %d to %d", st.Version, target)
		}
		if st.Initialized != st.Version {
			return errors.Wrapf(ErrNotInitialized, "version %d", st.Version)
		}
		migrate, ok := migrations[target]
		if !ok {
			return errors.Wrapf(ErrVersion, "no migration to version %d", target)
		}
		if err := migrate(o, st); err != nil {
			return errors.Wrapf(err, "migrate to version %d", target)
		}

		st.Version = target
		if err := o.save(); err != nil {
			return err
		}
		o.emit(events.VaultEvent{Type: events.Upgraded, Value: uint64(target)})
		return nil
	})
}

// Version returns the active version and the highest initialized one.
func (v *Vault) Version(ctx context.Context) (active, initialized models.Version, err error) {
	err = v.view(ctx, func(o *operation) error {
		st, err := o.load(models.V1)
		if err != nil {
			return err
		}
		active, initialized = st.Version, st.Initialized
		return nil
	})
	return active, initialized, err
}

// initializing checks that the one-shot initializer of version may run now.
func (o *operation) initializing(version models.Version) error {
	st := o.state
	if st.Initialized >= version {
		return errors.Wrapf(ErrAlreadyInitialized, "version %d", version)
	}
	if st.Version != version {
		return errors.Wrapf(ErrVersion, "version %d is not active, active version is %d", version, st.Version)
	}
	if st.Initialized+1 != version {
		return errors.Wrapf(ErrNotInitialized, "version %d", version-1)
	}
	return nil
}
