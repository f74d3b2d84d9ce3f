package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/log"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	w.WriteHeader(http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	http.Error(w, errMsg, status)
}

// Warning is sent back when a submission cannot be read; Retry is where the
// operator can submit it again.
type Warning struct {
	Warning string `json:"warning"`
	Retry   string `json:"retry"`
}

type Message struct {
	Message string `json:"message"`
}

// Fail sends the response matching the kind of err. Anything that is not one
// of the errs kinds is logged as an internal error and its detail is kept
// from the client.
func Fail(w http.ResponseWriter, r *http.Request, code string, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		LogNotFound(w, code, err)

	case errors.Is(err, errs.ErrMalformed):
		log.Debugf("%s: %s", code, err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, Warning{Warning: err.Error(), Retry: r.URL.Path})

	case errors.Is(err, errs.ErrDuplicate):
		log.Debugf("%s: %s", code, err)
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, Message{Message: "An item with the same key already exists"})

	case errors.Is(err, errs.ErrValidation):
		log.Debugf("%s: %s", code, err)
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, Message{Message: err.Error()})

	default:
		LogInternalError(w, code, err)
	}
}
