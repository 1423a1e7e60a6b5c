package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

var (
	// appJWTConfig is the default JWT auth middleware config.
	appJWTConfig = middleware.JWTConfig{
		SigningKey:    core.Conf.SecretKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "userToken",
		Claims:        new(Claims),
	}
	contextUserKey  = "user"
	contextActorKey = "actor"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email,omitempty"`
	IsTeacher     bool     `json:"is_teacher,omitempty"`     // -> TEACHER PORTAL
	IsCoordinator bool     `json:"is_coordinator,omitempty"` // -> COORDINATOR PORTAL
	IsAdmin       bool     `json:"is_admin,omitempty"`       // -> ADMIN PORTAL
	Roles         []string `json:"roles,omitempty"`
}

func (c *Claims) UserID() (int, error) {
	id, err := strconv.Atoi(c.Subject)
	return id, errors.Wrap(err, "parsing claims subject")
}

func GetUserClaims(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    core.Conf.AppName,
			Subject:   strconv.Itoa(usr.ID),
			ExpiresAt: now.Add(core.Conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username:      usr.Username,
		Email:         usr.Email,
		IsTeacher:     usr.IsTeacher(),
		IsCoordinator: usr.IsCoordinator(),
		IsAdmin:       usr.IsAdmin(),
		Roles:         usr.Roles,
	}
}

func authenticate(uname, pwd string, svc user.Service) (*Claims, error) {
	usr, err := svc.GetByUsernameOrEmail(uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return GetUserClaims(usr), nil
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(appJWTConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(appJWTConfig.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(appJWTConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context claims")
	}
	id, err := claims.UserID()
	if err != nil {
		return user.User{}, err
	}

	usr, err := svc.GetByID(id)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// getContextActor builds the capability object the attendance engine works
// with: identity from the verified claims, assignments from the roster.
func getContextActor(ctx echo.Context, schoolSvc school.Service) (attendance.Actor, error) {
	if actor, ok := ctx.Get(contextActorKey).(attendance.Actor); ok {
		return actor, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return attendance.Actor{}, errors.Wrap(err, "getting context claims")
	}
	id, err := claims.UserID()
	if err != nil {
		return attendance.Actor{}, err
	}

	actor := attendance.Actor{ID: id, Roles: claims.Roles}
	if claims.IsTeacher {
		rooms, err := schoolSvc.ClassroomsManagedBy(id)
		if err != nil {
			return attendance.Actor{}, errors.Wrap(err, "querying managed classrooms")
		}
		for _, room := range rooms {
			actor.ManagedClassrooms = append(actor.ManagedClassrooms, room.ID)
		}
	}
	if claims.IsCoordinator {
		levels, err := schoolSvc.LevelAuthorityOf(id)
		if err != nil {
			return attendance.Actor{}, errors.Wrap(err, "querying coordinator levels")
		}
		actor.Levels = levels
	}

	ctx.Set(contextActorKey, actor)
	return actor, nil
}
