package mvc

import (
	"fmt"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const KeyUnitOfWork = "unitOfWorkID"

// UnitOfWorkMiddleware opens a unit of work for each request and ends it,
// together with everything scoped to it, once the handlers return.
func UnitOfWorkMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, uow := Begin(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Set(KeyUnitOfWork, uow.ID)

		defer func() {
			if err := uow.End(); err != nil {
				zap.L().Error("end unit of work failed.", zap.String("id", uow.ID), zap.Error(err))
			}
		}()

		c.Next()
	}
}

// Handle resolves T through the current resolver on every request and passes
// it to action.
//
//	router.GET("/hello", mvc.Handle(func(ctl *HelloController, c *gin.Context) {
//		ctl.Hello(c)
//	}))
func Handle[T any](action func(T, *gin.Context)) gin.HandlerFunc {
	serviceType := reflect.TypeFor[T]()
	return func(c *gin.Context) {
		service, err := Current().GetService(c.Request.Context(), serviceType)
		if err != nil {
			zap.L().Error("resolve controller failed.", zap.Stringer("type", serviceType), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
			})
			return
		}
		controller, ok := service.(T)
		if !ok {
			zap.L().Warn("no controller registered.", zap.Stringer("type", serviceType))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("no service registered for %v", serviceType),
			})
			return
		}
		action(controller, c)
	}
}
