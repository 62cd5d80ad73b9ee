package terralens

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	dateLayout = "2006-01-02"

	// maxAnalysisDays is the widest window the processing pipeline accepts.
	maxAnalysisDays = 366
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(analysisRequestRules, AnalysisRequest{})

	// Report fields by their json tag so errors line up with the wire format.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// analysisRequestRules holds the cross-field rules that tags cannot express:
// end after start, and the window capped at 366 days.
func analysisRequestRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(AnalysisRequest)

	start, startErr := time.Parse(dateLayout, req.StartDate)
	end, endErr := time.Parse(dateLayout, req.EndDate)
	if startErr != nil || endErr != nil {
		return // format problems are already reported by the datetime tag
	}

	if !end.After(start) {
		sl.ReportError(req.EndDate, "EndDate", "EndDate", "gtstart", "")
		return
	}
	if end.Sub(start) > maxAnalysisDays*24*time.Hour {
		sl.ReportError(req.EndDate, "EndDate", "EndDate", "maxrange", "")
	}
}

// tagMessages translates validator tags into the messages shown next to form
// fields. Unknown tags fall through to a generic message.
var tagMessages = map[string]string{
	"required": "this field is required",
	"max":      "must be at most %s characters",
	"datetime": "must be a date in YYYY-MM-DD format",
	"oneof":    "must be one of: %s",
	"gtstart":  "end date must be after start date",
	"maxrange": "date range cannot exceed 366 days",
}

// Validate checks an AnalysisRequest against the submission invariants and
// returns a field-keyed error map, or nil when the request is submittable.
// It never touches the network.
func (r AnalysisRequest) Validate() ValidationErrors {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// validator.InvalidValidationError — should not happen for a struct.
		return ValidationErrors{"request": err.Error()}
	}

	out := make(ValidationErrors, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fieldName(fe)
		if _, dup := out[field]; dup {
			continue // keep the first problem per field
		}
		out[field] = messageFor(fe)
	}
	return out
}

func fieldName(fe validator.FieldError) string {
	// Struct-level ReportError records the Go field name; map it back to the
	// wire name by hand since there is no StructField to read the tag from.
	switch fe.Field() {
	case "EndDate":
		return "end_date"
	case "StartDate":
		return "start_date"
	}
	return fe.Field()
}

func messageFor(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}
