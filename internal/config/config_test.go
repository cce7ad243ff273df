package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/pepai/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreSQLite)
			convey.So(cfg.MaxAttempts, convey.ShouldEqual, 4)
			convey.So(cfg.MaxPromptLength, convey.ShouldEqual, 2000)
			convey.So(cfg.CreditCost, convey.ShouldEqual, 5)
			convey.So(cfg.PepPointCost, convey.ShouldEqual, 1)
			convey.So(cfg.DefaultCredits, convey.ShouldEqual, 10)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.VoiceName, convey.ShouldEqual, "Zephyr")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When the store driver is unknown", func() {
			cfg.StoreDriver = "mongo"
			err := cfg.Validate()

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store_driver")
			})
		})

		convey.Convey("When firestore is selected without a project", func() {
			cfg.StoreDriver = config.StoreFirestore
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)

			cfg.FirestoreProject = "pepai-test"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When auth is enabled without a firebase project", func() {
			cfg.AuthEnabled = true
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When max attempts is zero", func() {
			cfg.MaxAttempts = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a charge cost is not positive", func() {
			cfg.CreditCost = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.CreditCost = 5
			cfg.PepPointCost = -1
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When default credits are negative", func() {
			cfg.DefaultCredits = -3
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.DefaultCredits = 0
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
