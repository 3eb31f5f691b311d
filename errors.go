package refine

import (
	"fmt"
	"net/http"

	"github.com/malekhnovich/refine/dataprovider"
)

// UnknownResourceError reports a fetch forced to run against a resource name
// the registry does not know.
type UnknownResourceError struct {
	Name string
}

func (e *UnknownResourceError) Error() string {
	if e.Name == "" {
		return "refine: no resource name given and none inferable from the route"
	}
	return fmt.Sprintf("refine: unknown resource %q", e.Name)
}

// Unwrap exposes the failure with 404 semantics, so status-based handling
// (classification, the default notification) sees a real status code.
func (e *UnknownResourceError) Unwrap() error {
	return dataprovider.NewError(http.StatusNotFound, e.Error())
}

// errMissingID is the local precondition failure for a fetch forced to run
// without a record id. It carries 400 semantics so the default error
// notification renders a status code, and it is produced before any provider
// call.
func errMissingID(resource string) error {
	return dataprovider.NewError(http.StatusBadRequest,
		fmt.Sprintf("record id is required to fetch resource %q", resource))
}
