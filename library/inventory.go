package library

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

type InventoryEntry struct {
	Name   string
	Handle types.ManagedObjectReference
}

// InventoryEnumerator lists every entity of typeFilter under root, in the
// order the inventory service returns them.
type InventoryEnumerator func(ctx context.Context, root types.ManagedObjectReference, typeFilter string) ([]InventoryEntry, error)

// ContainerViewEnumerator enumerates through a recursive container view which
// is destroyed before returning.
func ContainerViewEnumerator(client *vim25.Client) InventoryEnumerator {
	return func(ctx context.Context, root types.ManagedObjectReference, typeFilter string) (entries []InventoryEntry, err error) {
		containerView, err := view.NewManager(client).CreateContainerView(ctx, root, []string{typeFilter}, true)
		if err != nil {
			return nil, ClassifyFault(err)
		}
		defer func() {
			if destroyError := containerView.Destroy(context.Background()); destroyError != nil {
				log.Warnf("Failed to destroy container view %v: %v", containerView.Reference(), destroyError)
			}
		}()

		collector := property.DefaultCollector(client)
		var viewObject mo.ContainerView
		if err = collector.RetrieveOne(ctx, containerView.Reference(), []string{"view"}, &viewObject); err != nil {
			return nil, ClassifyFault(err)
		}
		if len(viewObject.View) == 0 {
			return nil, nil
		}

		var content []types.ObjectContent
		if err = collector.Retrieve(ctx, viewObject.View, []string{"name"}, &content); err != nil {
			return nil, ClassifyFault(err)
		}

		for _, object := range content {
			entry := InventoryEntry{Handle: object.Obj}
			for _, dynamicProperty := range object.PropSet {
				if name, ok := dynamicProperty.Val.(string); ok && dynamicProperty.Name == "name" {
					entry.Name = name
				}
			}
			entries = append(entries, entry)
		}
		return entries, nil
	}
}

type InventoryResolver struct {
	enumerate InventoryEnumerator
}

func NewInventoryResolver(enumerate InventoryEnumerator) *InventoryResolver {
	return &InventoryResolver{enumerate: enumerate}
}

// Resolve returns the first entity named exactly name, or nil when there is
// none. Inventory names are not unique and the enumeration order is not
// stable across calls, so with duplicates the pick is only deterministic for
// a given enumeration.
func (resolver *InventoryResolver) Resolve(ctx context.Context, root types.ManagedObjectReference, typeFilter string, name string) (*types.ManagedObjectReference, error) {
	entries, err := resolver.enumerate(ctx, root, typeFilter)
	if err != nil {
		log.Debugf("Error enumerating %v under %v: %v", typeFilter, root, err)
		return nil, err
	}

	var match *types.ManagedObjectReference
	matches := 0
	for index := range entries {
		if entries[index].Name != name {
			continue
		}
		matches++
		if match == nil {
			handle := entries[index].Handle
			match = &handle
		}
	}

	if matches > 1 {
		log.Warnf("%v name %q matches %v entities, using %v", typeFilter, name, matches, match.Value)
	}
	return match, nil
}
