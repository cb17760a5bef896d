package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
	"github.com/zapdesk/zapdesk/pkg/utils"
)

// Recovery turns a panicking handler into a JSON error response instead
// of a dropped connection. Application errors raised as panics keep their
// own status and code; anything else becomes a 500.
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			res := utils.ResponseData{
				Status:  fiber.StatusInternalServerError,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", r),
			}
			if appErr, ok := r.(pkgError.GenericError); ok {
				res.Status = appErr.StatusCode()
				res.Code = appErr.ErrCode()
				res.Message = appErr.Error()
			}

			logrus.Errorf("[REST] Panic recovered on %s: %v", c.Path(), r)
			_ = c.Status(res.Status).JSON(res)
		}()

		return c.Next()
	}
}
