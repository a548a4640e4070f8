package run

func SetStatus(status Status) UpdateSetter {
	return func(r *Run) error {
		if !status.IsValid() {
			return ErrInvalidStatus
		}
		r.Status = status
		return nil
	}
}

func SetConfig(config JSONMap) UpdateSetter {
	return func(r *Run) error {
		r.Config = config
		return nil
	}
}

func SetResult(result JSONMap) UpdateSetter {
	return func(r *Run) error {
		r.Result = result
		return nil
	}
}
