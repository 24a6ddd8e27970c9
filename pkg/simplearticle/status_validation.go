package simplearticle

import "fmt"

// canEditArticle checks whether a new version may be appended.
func canEditArticle(status ArticleStatus) (bool, error) {
	switch status {
	case ArticleStatusActive, ArticleStatusInactive:
		return true, nil
	case ArticleStatusDeleted:
		return false, fmt.Errorf("%w: article is deleted, restore it first (status: %s)", ErrInvalidTransition, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, status)
	}
}

// canPublishArticle checks whether a version may become the published snapshot.
func canPublishArticle(status ArticleStatus) (bool, error) {
	switch status {
	case ArticleStatusActive:
		return true, nil
	case ArticleStatusInactive:
		return false, fmt.Errorf("%w: inactive versions cannot be published (status: %s)", ErrInvalidTransition, status)
	case ArticleStatusDeleted:
		return false, fmt.Errorf("%w: deleted articles cannot be published (status: %s)", ErrInvalidTransition, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, status)
	}
}

// canRestoreArticle reports whether Restore has anything to do.
func canRestoreArticle(status ArticleStatus) bool {
	return status == ArticleStatusDeleted
}

// transitionError wraps a rejected transition so callers can match both
// ErrValidation and ErrInvalidTransition.
func transitionError(field string, err error) error {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}
