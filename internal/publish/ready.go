package publish

import "github.com/DevExpGBB/azsvc/internal/mgmt"

// StorageReady reports whether a storage account can be used.
func StorageReady(s *mgmt.StorageService) bool {
	return s != nil && s.Properties.Status == mgmt.StorageCreated
}

// DeploymentReady reports whether every role instance is ready and the
// deployment is running. Unless strict, a deployment still Starting with
// all instances ready also counts.
func DeploymentReady(strict bool) func(*mgmt.Deployment) bool {
	return func(d *mgmt.Deployment) bool {
		if d == nil || len(d.RoleInstances) == 0 {
			return false
		}
		for _, ri := range d.RoleInstances {
			if ri.Status != mgmt.RoleReady {
				return false
			}
		}
		switch d.Status {
		case mgmt.DeploymentRunning:
			return true
		case mgmt.DeploymentStarting:
			return !strict
		}
		return false
	}
}
