package model_test

import (
	"strings"
	"testing"
	"time"

	model "github.com/okian/ladder/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestSubmissionNormalize(t *testing.T) {
	convey.Convey("Given a submission without optional fields", t, func() {
		s := model.Submission{PlayerID: 7, Score: 100}

		convey.Convey("When it is normalized", func() {
			s.Normalize()

			convey.Convey("Then the default mode is applied", func() {
				convey.So(s.Mode, convey.ShouldEqual, model.DefaultMode)
			})

			convey.Convey("Then the timestamp is filled in", func() {
				convey.So(s.TS.IsZero(), convey.ShouldBeFalse)
			})
		})
	})

	convey.Convey("Given a submission with explicit fields", t, func() {
		ts := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
		s := model.Submission{PlayerID: 7, Score: 100, Mode: "ranked", TS: ts}

		convey.Convey("When it is normalized", func() {
			s.Normalize()

			convey.Convey("Then the explicit values are untouched", func() {
				convey.So(s.Mode, convey.ShouldEqual, "ranked")
				convey.So(s.TS, convey.ShouldEqual, ts)
			})
		})
	})
}

func TestSubmissionValidate(t *testing.T) {
	convey.Convey("Given submissions at the accepted boundaries", t, func() {
		convey.Convey("When the score sits at the lower bound", func() {
			s := model.Submission{PlayerID: 1, Score: 0}

			convey.Convey("Then validation passes", func() {
				convey.So(s.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the score sits at the upper bound", func() {
			s := model.Submission{PlayerID: 1, Score: model.MaxScore}

			convey.Convey("Then validation passes", func() {
				convey.So(s.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the mode sits at the length bound", func() {
			s := model.Submission{PlayerID: 1, Score: 10, Mode: strings.Repeat("a", 32)}

			convey.Convey("Then validation passes", func() {
				convey.So(s.Validate(), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given submissions past the accepted boundaries", t, func() {
		convey.Convey("When the player id is zero", func() {
			s := model.Submission{PlayerID: 0, Score: 10}

			convey.Convey("Then the player id sentinel is returned", func() {
				convey.So(s.Validate(), convey.ShouldEqual, model.ErrInvalidPlayerID)
			})
		})

		convey.Convey("When the player id is negative", func() {
			s := model.Submission{PlayerID: -4, Score: 10}

			convey.Convey("Then the player id sentinel is returned", func() {
				convey.So(s.Validate(), convey.ShouldEqual, model.ErrInvalidPlayerID)
			})
		})

		convey.Convey("When the score is negative", func() {
			s := model.Submission{PlayerID: 1, Score: -1}

			convey.Convey("Then the score sentinel is returned", func() {
				convey.So(s.Validate(), convey.ShouldEqual, model.ErrScoreOutOfRange)
			})
		})

		convey.Convey("When the score exceeds the maximum", func() {
			s := model.Submission{PlayerID: 1, Score: model.MaxScore + 1}

			convey.Convey("Then the score sentinel is returned", func() {
				convey.So(s.Validate(), convey.ShouldEqual, model.ErrScoreOutOfRange)
			})
		})

		convey.Convey("When the mode exceeds the length bound", func() {
			s := model.Submission{PlayerID: 1, Score: 10, Mode: strings.Repeat("a", 33)}

			convey.Convey("Then the mode sentinel is returned", func() {
				convey.So(s.Validate(), convey.ShouldEqual, model.ErrInvalidMode)
			})
		})
	})

	convey.Convey("Given a multi-byte mode string", t, func() {
		s := model.Submission{PlayerID: 1, Score: 10, Mode: strings.Repeat("ü", 32)}

		convey.Convey("When it is validated", func() {
			convey.Convey("Then runes are counted rather than bytes", func() {
				convey.So(s.Validate(), convey.ShouldBeNil)
			})
		})
	})
}

func TestScoreEvent(t *testing.T) {
	convey.Convey("Given a committed submission", t, func() {
		at := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

		convey.Convey("When the score event is built", func() {
			ev := model.ScoreEvent{PlayerID: 42, Score: 900, OccurredAt: at}

			convey.Convey("Then it carries the submission facts", func() {
				convey.So(ev.PlayerID, convey.ShouldEqual, 42)
				convey.So(ev.Score, convey.ShouldEqual, 900)
				convey.So(ev.OccurredAt, convey.ShouldEqual, at)
			})
		})

		convey.Convey("When the score event is empty", func() {
			ev := model.ScoreEvent{}

			convey.Convey("Then it holds zero values", func() {
				convey.So(ev.PlayerID, convey.ShouldEqual, 0)
				convey.So(ev.Score, convey.ShouldEqual, 0)
				convey.So(ev.OccurredAt, convey.ShouldEqual, time.Time{})
			})
		})
	})
}

func TestRecomputeRequest(t *testing.T) {
	convey.Convey("Given recompute scopes", t, func() {
		convey.Convey("When a full pass is requested", func() {
			req := model.RecomputeRequest{Scope: model.ScopeFull}

			convey.Convey("Then no player is targeted", func() {
				convey.So(req.Scope, convey.ShouldEqual, model.ScopeFull)
				convey.So(req.PlayerID, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a single player is targeted", func() {
			req := model.RecomputeRequest{PlayerID: 42, Scope: model.ScopeIncremental}

			convey.Convey("Then the request names the player", func() {
				convey.So(req.Scope, convey.ShouldEqual, model.ScopeIncremental)
				convey.So(req.PlayerID, convey.ShouldEqual, 42)
			})
		})
	})
}
