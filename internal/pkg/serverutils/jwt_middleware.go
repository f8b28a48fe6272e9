package serverutils

import (
	"ai-consultation-be/pkg/identity"

	"github.com/gofiber/fiber/v2"
)

const (
	localsSubject = "subject"
	localsUserID  = "user_id"
)

// NewJwtMiddleware verifies the bearer token and stores the subject in Locals.
func NewJwtMiddleware(verifier identity.TokenVerifier) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		subject, err := verifier.Verify(ctx.UserContext(), ctx.Get(fiber.HeaderAuthorization))
		if err != nil {
			return err
		}

		ctx.Locals(localsSubject, subject)
		ctx.Locals(localsUserID, subject.ID)
		return ctx.Next()
	}
}

// SubjectFrom returns the verified subject, or nil on unprotected routes.
func SubjectFrom(ctx *fiber.Ctx) *identity.Subject {
	subject, _ := ctx.Locals(localsSubject).(*identity.Subject)
	return subject
}
