package permissions

import "errors"

var (
	// ErrUnknownRole indicates a role outside the fixed catalog.
	ErrUnknownRole = errors.New("permissions: unknown role")
	// ErrUnknownModule indicates a module outside the taxonomy.
	ErrUnknownModule = errors.New("permissions: unknown module")
	// ErrInvalidAction indicates an action that the module does not support.
	ErrInvalidAction = errors.New("permissions: action not valid for module")
	// ErrUserNotFound indicates no profile exists for the user.
	ErrUserNotFound = errors.New("permissions: user profile not found")
	// ErrProfileExists indicates a profile was already created for the user.
	ErrProfileExists = errors.New("permissions: profile already exists")
	// ErrTemplateNotFound indicates an unknown permission template name.
	ErrTemplateNotFound = errors.New("permissions: template not found")
	// ErrVersionConflict indicates a concurrent update won the save race.
	ErrVersionConflict = errors.New("permissions: profile version conflict")
)
