package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Kind controls whether a purchased feature carries over to renewals.
type Kind string

const (
	KindStandard        Kind = "standard"
	KindStandardOneTime Kind = "standard_one_time"
	KindCustom          Kind = "custom"
	KindCustomOneTime   Kind = "custom_one_time"
)

func Kinds() []Kind {
	return []Kind{KindStandard, KindStandardOneTime, KindCustom, KindCustomOneTime}
}

func (k Kind) Valid() bool {
	switch k {
	case KindStandard, KindStandardOneTime, KindCustom, KindCustomOneTime:
		return true
	default:
		return false
	}
}

func (k Kind) OneTime() bool {
	return k == KindStandardOneTime || k == KindCustomOneTime
}

func (k Kind) Recurring() bool {
	return !k.OneTime()
}

// Feature is a purchasable capability unlocking one or more entitlement slugs.
type Feature struct {
	ID           snowflake.ID                `gorm:"primaryKey"`
	Name         string                      `gorm:"type:text;not null;uniqueIndex:ux_features_name"`
	Currency     string                      `gorm:"type:text;not null"`
	AmountCents  int64                       `gorm:"not null;default:0"`
	Kind         Kind                        `gorm:"type:text;not null;default:'standard'"`
	FeatureSlugs datatypes.JSONSlice[string] `gorm:"not null"`
	Details      *string                     `gorm:"type:text"`
	CreatedAt    time.Time                   `gorm:"not null"`
	UpdatedAt    time.Time                   `gorm:"not null"`
}

func (Feature) TableName() string { return "features" }

func (f Feature) Recurring() bool { return f.Kind.Recurring() }
